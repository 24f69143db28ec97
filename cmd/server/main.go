package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rafeeq.app/rafeeq/internal/api"
	"rafeeq.app/rafeeq/internal/config"
	"rafeeq.app/rafeeq/internal/core"
	"rafeeq.app/rafeeq/internal/observability"
	"rafeeq.app/rafeeq/internal/store"
)

func main() {
	// Command line flag for validating an offline FAQ file
	faqFlag := flag.String("faq", "", "Validate an offline FAQ TOML file and exit")
	flag.Parse()

	if *faqFlag != "" {
		rules, _, err := core.LoadFAQFile(*faqFlag)
		if err != nil {
			log.Fatalf("Invalid FAQ file: %v", err)
		}
		fmt.Printf("%s: %d rules OK\n", *faqFlag, len(rules))
		os.Exit(0)
	}

	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	kv, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}
	defer kv.Close()

	// Offline FAQ, optionally from a hot-reloaded file
	responder := core.NewOfflineResponder(nil)
	if cfg.FAQFile != "" {
		rules, fallback, err := core.LoadFAQFile(cfg.FAQFile)
		if err != nil {
			logger.Fatal("Failed to load FAQ file", zap.String("path", cfg.FAQFile), zap.Error(err))
		}
		responder.SetRules(rules, fallback)
		if err := core.WatchFAQFile(ctx, cfg.FAQFile, responder, logger); err != nil {
			logger.Warn("FAQ hot reload disabled", zap.Error(err))
		}
	}

	llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.TitleModel, logger)
	if err != nil {
		logger.Fatal("Failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()
	provider := core.WithOfflineFallback(llmService, responder, logger)

	// Speech output
	synth := core.NewCommandSynthesizer(cfg.TTSCommand)
	if !synth.Available() {
		logger.Warn("Speech synthesis unavailable", zap.String("command", cfg.TTSCommand))
	}
	speech := core.NewSpeechQueue(synth, core.Voice{
		Lang:  cfg.SpeechLang,
		Rate:  cfg.SpeechRate,
		Pitch: cfg.SpeechPitch,
	}, cfg.SpeechRetryDelay, logger)
	go speech.Run(ctx)

	// Speech input, relayed from the UI shell
	var relay *core.RelayRecognizer
	var recognizer core.Recognizer
	if cfg.DictationEnabled {
		relay = core.NewRelayRecognizer()
		recognizer = relay
	}
	dictation := core.NewDictation(recognizer, logger)
	go dictation.Run(ctx)

	sessions := core.NewSessionStore(ctx, kv, logger)
	prefs := core.NewPreferenceStore(ctx, kv, logger)

	persona := core.DefaultPersona()
	persona.Sampling = core.SamplingParams{
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	turns := core.NewTurnController(sessions, provider, llmService, speech, core.TurnControllerOptions{
		Persona:   persona,
		AutoSpeak: prefs.AutoSpeak,
		Logger:    logger,
	})

	chatService := core.NewChatService(sessions, turns, speech, prefs, dictation, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, relay, logger)
	router := api.NewRouter(apiHandler, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: streamed turns stay open for as long as the model talks.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", serverAddr), zap.String("storage", cfg.StorageBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	turns.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	turns.Wait()
	stop()

	logger.Info("Server exiting gracefully")
}

func openStore(ctx context.Context, cfg config.Config) (store.KV, error) {
	switch cfg.StorageBackend {
	case "redis":
		return store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(cfg.DatabaseURL)
	}
}
