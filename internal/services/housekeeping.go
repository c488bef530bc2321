package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Pruner removes alerts older than a maximum age
type Pruner interface {
	PruneOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
}

// RunPruner prunes once immediately and then on every tick until ctx is done
func RunPruner(ctx context.Context, pruner Pruner, interval, maxAge time.Duration) {
	prune := func() {
		if _, err := pruner.PruneOlderThan(ctx, maxAge); err != nil {
			log.Error().Err(err).Msg("Failed to prune alerts")
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
