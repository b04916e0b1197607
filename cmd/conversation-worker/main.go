package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/agendmed/cmd/mainconfig"
	"github.com/wolfman30/agendmed/internal/app/bootstrap"
	appconfig "github.com/wolfman30/agendmed/internal/config"
	"github.com/wolfman30/agendmed/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if _, err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.UseMemoryQueue {
		logger.Error("USE_MEMORY_QUEUE is set; the API consumes the in-process queue itself")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := bootstrap.BuildCore(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to build booking stack", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	queue, err := mainconfig.BuildConversationQueue(ctx, cfg)
	if err != nil {
		logger.Error("failed to build conversation queue", "error", err)
		os.Exit(1)
	}

	worker := core.NewWorker(queue)
	worker.Start(ctx)
	go core.Deliverer().Start(ctx)
	logger.Info("conversation worker started", "lanes", cfg.WorkerCount, "channel", core.Channel.Name())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
