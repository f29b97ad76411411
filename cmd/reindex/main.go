// Command reindex re-embeds every stored chunk with the configured embedding
// model. Run it after changing the model or switching the vector index.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ragdesk/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("reindex failed: %v", err)
	}
}

func run(ctx context.Context) error {
	a, err := bootstrap.New(ctx, bootstrap.WithoutWorker())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Services.Document.ReindexAll(ctx)
	if err != nil {
		return err
	}
	a.Log.Info("reindex finished", zap.Int("chunks", result.Chunks), zap.Int("degraded", result.Degraded))
	return nil
}
