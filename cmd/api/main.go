// Package main is the entry point for the chat API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/config"
	"github.com/capitalize-ai/recruit-chat/internal/handler"
	"github.com/capitalize-ai/recruit-chat/internal/llm"
	natsclient "github.com/capitalize-ai/recruit-chat/internal/nats"
	"github.com/capitalize-ai/recruit-chat/internal/service"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/internal/store/memory"
	"github.com/capitalize-ai/recruit-chat/internal/store/mongostore"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
	"github.com/capitalize-ai/recruit-chat/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting chat server", zap.String("store", cfg.StoreBackend))

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "recruit-chat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}

	checks := map[string]handler.Pinger{"store": st}

	var journal service.Journal = service.NopJournal{}
	var natsClient *natsclient.Client
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		j := natsclient.NewJournal(natsClient)
		if err := j.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		journal = j
		checks["nats"] = natsClient
	} else {
		log.Info("NATS_URL not set, room event journal disabled")
	}

	svc := service.NewChatService(st, journal, service.Options{
		StoreTimeout:         cfg.StoreTimeout,
		TypingIdleUser:       cfg.TypingIdleUser,
		TypingIdleAdmin:      cfg.TypingIdleAdmin,
		ReconcileConcurrency: cfg.ReconcileConcurrency,
	}, log.Named("chat"))

	llmClient, err := llm.Select(cfg.DefaultLLM, cfg.AnthropicAPIKey, cfg.OpenAIAPIKey)
	switch {
	case err != nil:
		log.Warn("failed to create LLM client, reply drafting disabled", zap.Error(err))
	case llmClient == nil:
		log.Info("no LLM key configured, reply drafting disabled")
	default:
		svc.SetDrafter(service.NewReplyDrafter(llmClient, st, service.DrafterOptions{
			Model: cfg.DraftModel,
		}, log.Named("drafter")))
		log.Info("reply drafting enabled", zap.String("provider", llmClient.Name()))
	}

	router := newRouter(cfg, svc, checks, log)

	// Cancelled before Shutdown so open event streams return.
	baseCtx, cancelStreams := context.WithCancel(ctx)
	defer cancelStreams()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cancelStreams()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	svc.Close(shutdownCtx)
	if err := st.Close(shutdownCtx); err != nil {
		log.Warn("failed to close store", zap.Error(err))
	}

	log.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		st := mongostore.New(client, cfg.MongoDatabase, cfg.StoreTimeout, log)

		ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := st.EnsureIndexes(ictx); err != nil {
			st.Close(context.Background())
			return nil, err
		}
		return st, nil

	case config.BackendMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.Environment == "development" {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel)
}
