package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"boltforge/internal/config"
	"boltforge/internal/llm"
	"boltforge/internal/realtime"
	"boltforge/internal/sandbox"
	"boltforge/internal/session"
	"boltforge/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.AnthropicAPIKey == "" {
		log.Println("ANTHROPIC_API_KEY is not set; model calls will fail")
	}

	svc := llm.NewAnthropic(llm.AnthropicConfig{
		APIKey:    cfg.AnthropicAPIKey,
		Model:     cfg.AnthropicModel,
		BaseURL:   cfg.AnthropicBaseURL,
		MaxTokens: cfg.ChatMaxTokens,
	})

	// Initialize file watcher (the session manager is set before any
	// directory is watched).
	var sessMgr *session.Manager
	fileWatch := watcher.New(func(dir string, fileCount int) {
		if sessMgr != nil {
			sessMgr.PublishFileCount(fileCount)
		}
	})

	// The sandbox boots lazily on the first mount.
	var booted atomic.Pointer[sandbox.Local]
	boot := func(ctx context.Context) (sandbox.Handle, error) {
		local, err := sandbox.Boot(ctx, sandbox.LocalConfig{Root: cfg.SandboxDir})
		if err != nil {
			return nil, err
		}
		booted.Store(local)
		log.Printf("sandbox booted at %s", local.WorkDir())

		if cfg.WatchSandbox {
			if err := fileWatch.Watch(local.WorkDir()); err != nil {
				log.Printf("failed to watch sandbox %s: %v", local.WorkDir(), err)
			}
		}
		return local, nil
	}
	registry := sandbox.NewRegistry(boot, sandbox.DirIsolation(cfg.SandboxDir))
	orch := sandbox.NewOrchestrator(registry, sandbox.ParseCommand(cfg.InstallCmd), sandbox.ParseCommand(cfg.DevCmd))

	// Initialize session manager.
	sessMgr = session.NewManager(svc, svc, orch)

	// Initialize realtime server.
	rtServer := realtime.New(sessMgr, svc, svc, cfg.SandboxDir, cfg.StaticDir)

	// Set up HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: rtServer.Handler(),
	}

	// Graceful shutdown on signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		fileWatch.Shutdown()
		sessMgr.Shutdown()
		if local := booted.Load(); local != nil {
			local.Shutdown()
		}
		httpServer.Close()
	}()

	log.Printf("boltforge server running on http://localhost:%d (sandbox %s)", cfg.Port, cfg.SandboxDir)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
