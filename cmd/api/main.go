package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hooma-ai/chatbot-backend/internal/config"
	"github.com/hooma-ai/chatbot-backend/internal/handler"
	"github.com/hooma-ai/chatbot-backend/internal/service/ai"
	"github.com/hooma-ai/chatbot-backend/internal/service/chat"
	"github.com/hooma-ai/chatbot-backend/internal/service/ratelimit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	instructions, knowledge := cfg.Prompt.LoadTexts()

	store := chat.NewStore(cfg.Session.IdleTimeout, nil)
	limiter := ratelimit.New(cfg.Limits.PerMinute, cfg.Limits.PerHour, nil)

	var generator chat.Generator
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI, instructions, knowledge)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality, clients receive the fallback reply")
		} else {
			generator = aiSvc
			log.Printf("AI service initialized, provider=%s", aiSvc.Provider())
		}
	} else {
		log.Printf("no credentials for provider %q, skipping AI initialization", cfg.AI.Provider)
	}

	chatSvc := chat.NewService(store, limiter, generator, cfg.Limits.MaxMessageLength, "")

	go runMaintenance(ctx, store, limiter, cfg.Session.SweepInterval)

	router := handler.NewRouter(cfg, chatSvc, store)
	startServer(ctx, cfg.Server, router)
}

// runMaintenance drives the idle-session sweep and rate-bucket pruning at a
// low cadence, independent of request handling.
func runMaintenance(ctx context.Context, store *chat.Store, limiter *ratelimit.Limiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if swept := store.Sweep(now); swept > 0 {
				log.Printf("[sweep] evicted %d idle sessions", swept)
			}
			if pruned := limiter.Prune(now); pruned > 0 {
				log.Printf("[sweep] pruned %d idle rate buckets", pruned)
			}
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("%s listening on %s", serverCfg.AppName, serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
