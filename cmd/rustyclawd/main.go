// Command rustyclawd runs the full RustyClaw runtime: process manager,
// session registry, thread manager, task manager, context composer, tool
// dispatcher, and the optional HTTP surface, all sharing one workspace.
// Bring-up order is config, then logger, then each subsystem, then the
// HTTP server, then signal-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/common/logger"
	ctxcompose "github.com/rustyclaw/core/internal/context"
	"github.com/rustyclaw/core/internal/dispatch"
	"github.com/rustyclaw/core/internal/httpapi"
	"github.com/rustyclaw/core/internal/procmgr"
	"github.com/rustyclaw/core/internal/session"
	"github.com/rustyclaw/core/internal/taskmgr"
	"github.com/rustyclaw/core/internal/thread"
	"github.com/rustyclaw/core/internal/vault"
)

func main() {
	cfg, err := config.Load(os.Getenv("RUSTYCLAW_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting rustyclawd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	procs := procmgr.New(cfg.Process, log)
	defer procs.StopAll()

	sessions := session.New(cfg.Session, log)
	defer sessions.Close()

	threads := thread.New(cfg.Thread, log)
	if err := threads.LoadFromFile(); err != nil {
		log.Warn("failed to load thread state, starting empty", zap.Error(err))
	}

	tasks := taskmgr.New(ctx, cfg.Task, log)

	kv, err := vault.Open(cfg.Vault, os.Getenv("RUSTYCLAW_VAULT_PASSWORD"), log)
	if err != nil {
		log.Warn("failed to open vault, vault routes will report unavailable", zap.Error(err))
	}

	composer := ctxcompose.New()

	dispatcher := dispatch.New(cfg.Dispatch, log)
	// Concrete tool bodies (file, web, process, etc.) register themselves
	// with dispatcher here as they land; none ship with this runtime yet.

	server := httpapi.New(fmt.Sprintf("127.0.0.1:%d", 8080), httpapi.Deps{
		Sessions:     sessions,
		Threads:      threads,
		Tasks:        tasks,
		Vault:        kv,
		Composer:     composer,
		Dispatcher:   dispatcher,
		WorkspaceDir: cfg.Workspace.Root,
		Logger:       log,
	})
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down rustyclawd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http api shutdown error", zap.Error(err))
	}
	if err := threads.SaveToFile(); err != nil {
		log.Error("failed to persist thread state", zap.Error(err))
	}
	tasks.Stop()
	if err := tasks.Wait(); err != nil {
		log.Error("task manager cleanup sweep error", zap.Error(err))
	}

	log.Info("rustyclawd stopped")
}
