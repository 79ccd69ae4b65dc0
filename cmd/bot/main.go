package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Gustavo1341/meurepositorio/internal/batch"
	appconfig "github.com/Gustavo1341/meurepositorio/internal/config"
	"github.com/Gustavo1341/meurepositorio/internal/conversation"
	"github.com/Gustavo1341/meurepositorio/internal/dispatch"
	"github.com/Gustavo1341/meurepositorio/internal/funnel"
	"github.com/Gustavo1341/meurepositorio/internal/llm"
	"github.com/Gustavo1341/meurepositorio/internal/memory"
	"github.com/Gustavo1341/meurepositorio/internal/observability/metrics"
	"github.com/Gustavo1341/meurepositorio/internal/transport"
	"github.com/Gustavo1341/meurepositorio/pkg/logging"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp sales bot",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	botMetrics := metrics.NewBotMetrics(nil)

	store, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize memory store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	defaultStage, err := funnel.ParseStage(cfg.DefaultStage)
	if err != nil {
		logger.Error("invalid default funnel stage", "stage", cfg.DefaultStage, "error", err)
		os.Exit(1)
	}
	engine := funnel.NewEngine(store, funnel.DefaultCatalog(), funnel.EngineConfig{
		UpsellEnabled:            cfg.UpsellEnabled,
		DownsellEnabled:          cfg.DownsellEnabled,
		DefaultStage:             defaultStage,
		AllowBackwardTransitions: cfg.AllowBackwardTransitions,
	}, logger)

	gateway, gatewayClose, err := buildGateway(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize llm gateway", "error", err)
		os.Exit(1)
	}
	defer gatewayClose()

	sender, err := transport.NewCloudSender(transport.CloudConfig{
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to initialize whatsapp sender", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.NewDispatcher(sender, dispatch.Config{
		MaxChunkLength:     cfg.MaxChunkLength,
		TypingDelayPerRune: cfg.TypingDelayPerRune,
		TypingDelayMin:     cfg.TypingDelayMin,
		TypingDelayMax:     cfg.TypingDelayMax,
		InterMessageMin:    cfg.InterMessageMin,
		InterMessageMax:    cfg.InterMessageMax,
	}, logger, dispatch.WithMetrics(botMetrics))

	processor := conversation.NewProcessor(store, engine, gateway, dispatcher, botMetrics, conversation.ProcessorConfig{
		Temperature:    float32(cfg.LLMTemperature),
		MaxTokens:      cfg.LLMMaxTokens,
		LLMTimeout:     cfg.LLMTimeout,
		SocialProofLib: loadSocialProofLibrary(logger),
		CheckoutLinks:  loadJSONMapEnv("CHECKOUT_LINKS", logger),
	}, logger)

	batcher := batch.NewBatcher(cfg.DebounceWindow, processor.ProcessBatch, logger)

	webhook := transport.NewWebhookHandler(batcher, cfg.WhatsAppVerifyToken, botMetrics, logger)
	router := transport.NewRouter(transport.RouterConfig{Webhook: webhook})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting webhooks first, then drain in-flight turns and the
	// outgoing queues.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := batcher.Shutdown(ctx); err != nil {
		logger.Error("batcher shutdown incomplete", "error", err)
	}
	if err := dispatcher.Shutdown(ctx); err != nil {
		logger.Error("dispatcher shutdown incomplete", "error", err)
	}

	logger.Info("stopped")
}

// buildStore wires the persistent store. With a database configured it is
// Postgres behind a Redis cache; without one the bot falls back to in-memory
// state, which is only suitable for local development.
func buildStore(cfg *appconfig.Config, logger *logging.Logger) (memory.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return memory.NewInMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		db.Close()
		return nil, nil, err
	}

	store := memory.NewCachedStore(memory.NewPostgresStore(db), redisClient, cfg.MemoryCacheTTL)
	cleanup := func() {
		redisClient.Close()
		db.Close()
	}
	return store, cleanup, nil
}

// buildGateway assembles the model chain: OpenAI primary, Gemini fallback
// when configured, wrapped in retries.
func buildGateway(cfg *appconfig.Config, logger *logging.Logger) (llm.Client, func(), error) {
	primary, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		return nil, nil, err
	}

	var fallback llm.Client
	closeFn := func() {}
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini fallback unavailable", "error", err)
		} else {
			fallback = gemini
			closeFn = func() { gemini.Close() }
		}
	}

	chain := llm.NewRetryClient(llm.NewFallbackClient(primary, fallback, logger), llm.RetryConfig{
		MaxAttempts: cfg.LLMMaxRetries,
		BaseBackoff: cfg.LLMRetryBase,
		MaxBackoff:  cfg.LLMRetryMax,
	}, logger)
	return chain, closeFn, nil
}

// loadSocialProofLibrary reads SOCIAL_PROOF_LIBRARY, a JSON object mapping
// proof IDs to {"url": ..., "caption": ...}.
func loadSocialProofLibrary(logger *logging.Logger) map[string]conversation.Asset {
	raw := strings.TrimSpace(os.Getenv("SOCIAL_PROOF_LIBRARY"))
	if raw == "" {
		return nil
	}
	var lib map[string]struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal([]byte(raw), &lib); err != nil {
		logger.Warn("invalid SOCIAL_PROOF_LIBRARY, ignoring", "error", err)
		return nil
	}
	assets := make(map[string]conversation.Asset, len(lib))
	for id, entry := range lib {
		assets[id] = conversation.Asset{URL: entry.URL, Caption: entry.Caption}
	}
	return assets
}

// loadJSONMapEnv reads an env var holding a JSON object of string pairs.
func loadJSONMapEnv(key string, logger *logging.Logger) map[string]string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		logger.Warn("invalid JSON map env, ignoring", "key", key, "error", err)
		return nil
	}
	return m
}
