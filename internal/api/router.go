package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"rafeeq.app/rafeeq/internal/observability"
)

func NewRouter(apiHandler *APIHandler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.RequestLogger(logger))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", apiHandler.ListSessionsHandler)
			r.Post("/", apiHandler.CreateSessionHandler)
			r.Delete("/", apiHandler.ClearSessionsHandler)
			r.Put("/active", apiHandler.SetActiveSessionHandler)
			r.Get("/{sessionID}", apiHandler.GetSessionHandler)
			r.Delete("/{sessionID}", apiHandler.DeleteSessionHandler)
		})

		r.Post("/messages", apiHandler.SendMessageHandler)
		r.Post("/messages/{messageID}/regenerate", apiHandler.RegenerateHandler)
		r.Post("/messages/{messageID}/feedback", apiHandler.MessageFeedbackHandler)
		r.Post("/messages/{messageID}/speak", apiHandler.SpeakMessageHandler)

		r.Get("/turn", apiHandler.TurnStatusHandler)
		r.Post("/turn/cancel", apiHandler.CancelTurnHandler)

		r.Get("/speech", apiHandler.SpeechStatusHandler)
		r.Post("/speech/cancel", apiHandler.CancelSpeechHandler)

		r.Get("/preferences", apiHandler.GetPreferencesHandler)
		r.Patch("/preferences", apiHandler.UpdatePreferencesHandler)

		r.Route("/dictation", func(r chi.Router) {
			r.Get("/", apiHandler.DictationStatusHandler)
			r.Post("/start", apiHandler.StartDictationHandler)
			r.Post("/stop", apiHandler.StopDictationHandler)
			r.Post("/events", apiHandler.DictationEventHandler)
		})
	})

	return r
}
