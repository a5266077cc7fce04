package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/annotation"
	"github.com/iammorganparry/clive/apps/learnbot/internal/api"
	"github.com/iammorganparry/clive/apps/learnbot/internal/bot"
	"github.com/iammorganparry/clive/apps/learnbot/internal/config"
	"github.com/iammorganparry/clive/apps/learnbot/internal/embedding"
	"github.com/iammorganparry/clive/apps/learnbot/internal/logging"
	"github.com/iammorganparry/clive/apps/learnbot/internal/logic"
	"github.com/iammorganparry/clive/apps/learnbot/internal/metrics"
	"github.com/iammorganparry/clive/apps/learnbot/internal/preprocess"
	"github.com/iammorganparry/clive/apps/learnbot/internal/spelling"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store/mongostore"
	"github.com/iammorganparry/clive/apps/learnbot/internal/trainer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "learnbot server: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	_ = godotenv.Load()

	// Config
	cfg, err := config.Load(os.Getenv("LEARNBOT_CONFIG"))
	if err != nil {
		return err
	}

	// Logger
	logger, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: "learnbot",
	})
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	st, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// External services
	annotationClient := annotation.NewHTTPClient(cfg.Annotation.URL, cfg.Annotation.Language, cfg.Annotation.Timeout)
	if err := annotationClient.HealthCheck(ctx); err != nil {
		logger.Warn("annotation service not available at startup, will retry on first use", zap.Error(err))
	}
	embedder, err := newEmbedder(cfg.Embedding, db, logger)
	if err != nil {
		return err
	}
	annotator := annotation.WithEmbedder(annotationClient, embedder)

	var corrector *spelling.Corrector
	if cfg.Spelling.Enabled {
		dict := spelling.NewHTTPDictionary(cfg.Spelling.URL, cfg.Spelling.Timeout)
		corrector = spelling.NewCorrector(dict, annotator, logger)
	}

	// Bot
	preprocessors, err := preprocess.Build(cfg.Bot.Preprocessors)
	if err != nil {
		return err
	}
	adapters, err := logic.Build(cfg.Bot.LogicAdapters, logic.Deps{
		Store:           st,
		Logger:          logger,
		DefaultResponse: cfg.Bot.DefaultResponse,
		FloorConfidence: cfg.Bot.FloorConfidence,
		MinOverlap:      cfg.Bot.MinOverlap,
		PageSize:        cfg.Storage.PageSize,
	})
	if err != nil {
		return err
	}
	m := metrics.New()
	b, err := bot.New(bot.Options{
		Name:          cfg.Bot.Name,
		Store:         st,
		Annotator:     annotator,
		Corrector:     corrector,
		Adapters:      adapters,
		Preprocessors: preprocessors,
		ReadOnly:      cfg.Bot.ReadOnly,
		RecentWindow:  cfg.RecentWindow(),
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		return err
	}

	// Router
	router := api.NewRouter(api.Deps{
		Bot:        b,
		Store:      st,
		Trainer:    trainer.NewListTrainer(st, annotator, preprocessors, logger),
		Annotation: annotationClient,
		Metrics:    m,
		Logger:     logger,
		APIKey:     cfg.Server.APIKey,
		RateLimit:  cfg.Server.RateLimit,
		TrustProxy: cfg.Server.TrustProxy,
		RateBurst:  cfg.Server.RateBurst,
	})

	// Server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("learnbot server starting",
			zap.String("addr", addr),
			zap.String("bot", cfg.Bot.Name),
			zap.Strings("adapters", b.Adapters()),
			zap.String("storage", cfg.Storage.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}

// openStore returns the configured store. db is the SQLite handle, nil for
// MongoDB.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, *store.DB, error) {
	switch cfg.Storage.Driver {
	case "mongodb":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := mongostore.Open(connectCtx, cfg.Storage.MongoURI, mongostore.Options{
			Database:   cfg.Storage.MongoDatabase,
			MaxRetries: cfg.Storage.MaxRetries,
			RetryDelay: cfg.Storage.RetryDelay,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		db, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		s := store.NewStatementStore(db, store.Options{
			MaxRetries: cfg.Storage.MaxRetries,
			RetryDelay: cfg.Storage.RetryDelay,
			Logger:     logger,
		})
		return s, db, nil
	}
}

// newEmbedder returns nil for the annotation provider. Vectors are cached
// in SQLite when a SQLite database is open.
func newEmbedder(cfg config.EmbeddingConfig, db *store.DB, logger *zap.Logger) (annotation.Embedder, error) {
	var model embedding.Model
	switch cfg.Provider {
	case "ollama":
		model = embedding.NewOllamaClient(cfg.OllamaURL, cfg.Model)
	case "openai":
		c, err := embedding.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.Model, cfg.MaxRetries, cfg.RetryDelay)
		if err != nil {
			return nil, err
		}
		model = c
	default:
		return nil, nil
	}

	if !cfg.Cache || db == nil {
		return model, nil
	}
	return embedding.NewCachedEmbedder(model, store.NewVectorCacheStore(db), logger), nil
}
