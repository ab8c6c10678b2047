package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Options control retention in every store implementation
type Options struct {
	// Retention is how many learning records are kept
	Retention int
	// ClaimTTL is how long dispatch claims are remembered
	ClaimTTL time.Duration
	// CleanupFreq is the interval of the background pruning task
	CleanupFreq time.Duration
}

// DefaultOptions returns the stock retention settings
func DefaultOptions() Options {
	return Options{
		Retention:   500,
		ClaimTTL:    30 * 24 * time.Hour,
		CleanupFreq: time.Hour,
	}
}

// cleaner is implemented by every store
type cleaner interface {
	Cleanup(ctx context.Context) error
}

// startCleanupTask runs c.Cleanup every freq until stopCh is closed
func startCleanupTask(c cleaner, freq time.Duration, stopCh <-chan struct{}, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)
	if freq <= 0 {
		<-stopCh
		return
	}
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				logger.Error("Failed to clean up store", zap.Error(err))
			}
		case <-stopCh:
			return
		}
	}
}
