package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rafeeq.app/rafeeq/internal/core"
	"rafeeq.app/rafeeq/internal/observability"
	"rafeeq.app/rafeeq/internal/store"
)

type APIHandler struct {
	chatService *core.ChatService
	relay       *core.RelayRecognizer // nil when dictation is disabled
	logger      *zap.Logger
}

func NewAPIHandler(cs *core.ChatService, relay *core.RelayRecognizer, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{chatService: cs, relay: relay, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses. Unexpected errors are logged.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrMessageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrEmptyMessage), errors.Is(err, core.ErrInvalidAttachment),
		errors.Is(err, core.ErrInvalidFeedback), errors.Is(err, core.ErrFeedbackNotAllowed),
		errors.Is(err, core.ErrNotRegenerable), errors.Is(err, core.ErrInvalidTheme):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrTurnInProgress), errors.Is(err, core.ErrNoActiveSession),
		errors.Is(err, core.ErrRecognizerIdle):
		status = http.StatusConflict
	case errors.Is(err, core.ErrSpeechUnavailable), errors.Is(err, core.ErrSpeechUnsupported):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context(), h.logger).Error(msg, zap.Error(err))
		http.Error(w, msg, status)
		return
	}
	http.Error(w, err.Error(), status)
}

type noticeResponse struct {
	Notice  string             `json:"notice,omitempty"`
	Session *store.ChatSession `json:"session,omitempty"`
	Message *store.Message     `json:"message,omitempty"`
}

type SessionsResponse struct {
	ActiveSessionID string              `json:"activeSessionId"`
	Sessions        []store.ChatSession `json:"sessions"`
}

func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	active, _ := h.chatService.ActiveSession()
	writeJSON(w, http.StatusOK, SessionsResponse{
		ActiveSessionID: active.ID,
		Sessions:        h.chatService.Sessions(),
	})
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.chatService.CreateSession(r.Context())
	writeJSON(w, http.StatusCreated, sess)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, ok := h.chatService.Session(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	notice, err := h.chatService.DeleteSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err, "Failed to delete session")
		return
	}
	active, _ := h.chatService.ActiveSession()
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice, Session: &active})
}

func (h *APIHandler) ClearSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sess, notice := h.chatService.ClearSessions(r.Context())
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice, Session: &sess})
}

type SetActiveSessionRequest struct {
	ID string `json:"id"`
}

func (h *APIHandler) SetActiveSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req SetActiveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.chatService.SelectSession(r.Context(), req.ID); err != nil {
		h.writeError(w, r, err, "Failed to select session")
		return
	}
	active, _ := h.chatService.ActiveSession()
	writeJSON(w, http.StatusOK, active)
}

type SendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"` // data URL
}

// SendMessageHandler runs a turn and streams its events as SSE.
func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	stream := newEventStream(w)
	_, err := h.chatService.SendMessage(r.Context(), req.Text, req.Image, stream.observe)
	h.finishStream(w, r, stream, err)
}

func (h *APIHandler) RegenerateHandler(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	stream := newEventStream(w)
	_, err := h.chatService.Regenerate(r.Context(), messageID, stream.observe)
	h.finishStream(w, r, stream, err)
}

// finishStream reports err as a plain HTTP error when nothing was streamed yet,
// otherwise as a final "error" event.
func (h *APIHandler) finishStream(w http.ResponseWriter, r *http.Request, stream *eventStream, err error) {
	if err == nil {
		return
	}
	if !stream.started {
		h.writeError(w, r, err, "Failed to run turn")
		return
	}
	observability.LoggerFromContext(r.Context(), h.logger).Warn("Turn ended with error", zap.Error(err))
	stream.send("error", map[string]string{"error": err.Error()})
}

func (h *APIHandler) CancelTurnHandler(w http.ResponseWriter, r *http.Request) {
	h.chatService.StopGeneration()
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) TurnStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]core.TurnPhase{"phase": h.chatService.TurnPhase()})
}

type FeedbackRequest struct {
	Feedback store.Feedback `json:"feedback"`
}

func (h *APIHandler) MessageFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	msg, notice, err := h.chatService.SetMessageFeedback(r.Context(), messageID, req.Feedback)
	if err != nil {
		h.writeError(w, r, err, "Failed to set feedback")
		return
	}
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice, Message: &msg})
}

func (h *APIHandler) SpeakMessageHandler(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if err := h.chatService.SpeakMessage(messageID); err != nil {
		h.writeError(w, r, err, "Failed to speak message")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *APIHandler) SpeechStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatService.SpeechStatus())
}

func (h *APIHandler) CancelSpeechHandler(w http.ResponseWriter, r *http.Request) {
	h.chatService.CancelSpeech()
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatService.Preferences())
}

// UpdatePreferencesRequest applies toggles first, then explicit values.
type UpdatePreferencesRequest struct {
	ToggleTheme     bool        `json:"toggleTheme,omitempty"`
	ToggleAutoSpeak bool        `json:"toggleAutoSpeak,omitempty"`
	Theme           *core.Theme `json:"theme,omitempty"`
	AutoSpeak       *bool       `json:"autoSpeak,omitempty"`
}

func (r UpdatePreferencesRequest) actions() []core.PreferenceAction {
	var actions []core.PreferenceAction
	if r.ToggleTheme {
		actions = append(actions, core.ToggleTheme())
	}
	if r.ToggleAutoSpeak {
		actions = append(actions, core.ToggleAutoSpeak())
	}
	if r.Theme != nil {
		actions = append(actions, core.SetTheme(*r.Theme))
	}
	if r.AutoSpeak != nil {
		actions = append(actions, core.SetAutoSpeak(*r.AutoSpeak))
	}
	return actions
}

func (h *APIHandler) UpdatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	prefs, err := h.chatService.UpdatePreferences(r.Context(), req.actions()...)
	if err != nil {
		h.writeError(w, r, err, "Failed to update preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

type DictationResponse struct {
	core.DictationSnapshot
	// Capture tells the UI shell whether it should be recording.
	Capture bool `json:"capture"`
}

func (h *APIHandler) dictationState() DictationResponse {
	resp := DictationResponse{DictationSnapshot: h.chatService.Dictation().Snapshot()}
	if h.relay != nil {
		resp.Capture = h.relay.Listening()
	}
	return resp
}

func (h *APIHandler) DictationStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dictationState())
}

func (h *APIHandler) StartDictationHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.Dictation().Start(); err != nil {
		if errors.Is(err, core.ErrSpeechUnsupported) {
			writeJSON(w, http.StatusServiceUnavailable, h.dictationState())
			return
		}
		h.writeError(w, r, err, "Failed to start dictation")
		return
	}
	writeJSON(w, http.StatusOK, h.dictationState())
}

func (h *APIHandler) StopDictationHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.Dictation().Stop(); err != nil {
		if errors.Is(err, core.ErrSpeechUnsupported) {
			writeJSON(w, http.StatusServiceUnavailable, h.dictationState())
			return
		}
		h.writeError(w, r, err, "Failed to stop dictation")
		return
	}
	writeJSON(w, http.StatusOK, h.dictationState())
}

// DictationEventHandler accepts an engine event relayed by the UI shell.
func (h *APIHandler) DictationEventHandler(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		h.writeError(w, r, core.ErrSpeechUnsupported, "Dictation is disabled")
		return
	}
	var ev core.RecognitionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	switch ev.Kind {
	case core.RecognitionResult, core.RecognitionEnd, core.RecognitionError:
	default:
		http.Error(w, "Unknown event kind", http.StatusBadRequest)
		return
	}
	if err := h.relay.Post(r.Context(), ev); err != nil {
		h.writeError(w, r, err, "Failed to relay dictation event")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// eventStream writes turn events as server-sent events. Headers go out with
// the first event so early failures can still use a plain HTTP status.
type eventStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

func (s *eventStream) observe(ev core.TurnEvent) {
	s.send(string(ev.Kind), ev)
}

func (s *eventStream) send(name string, data any) {
	if !s.started {
		s.started = true
		h := s.w.Header()
		h.Set("Content-Type", sse.ContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
	}
	if err := sse.Encode(s.w, sse.Event{Event: name, Data: data}); err != nil {
		return
	}
	_ = s.rc.Flush()
}
