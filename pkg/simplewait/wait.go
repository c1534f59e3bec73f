// Package simplewait sleeps for a seeded, randomized duration between one
// and two seconds. Runs with the same seed always wait the same time.
package simplewait

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	// MinDelay is the shortest wait.
	MinDelay = time.Second
	// Spread is the width of the random part of the wait.
	Spread = time.Second
)

// Delay returns MinDelay + U[0,1) * Spread drawn from a PCG generator
// seeded with seed.
func Delay(seed int64) time.Duration {
	r := rand.New(rand.NewPCG(uint64(seed), 0))
	return MinDelay + time.Duration(r.Float64()*float64(Spread))
}

// Run logs the start, waits Delay(seed) or until ctx is done, and logs
// the end.
func Run(ctx context.Context, seed int64, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	d := Delay(seed)
	logger.Info("starting", "seed", seed, "delay", d)

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
		logger.Warn("wait interrupted", "seed", seed)
		return ctx.Err()
	}

	logger.Info("ending", "seed", seed)
	return nil
}
