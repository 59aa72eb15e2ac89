package jobs

import (
	"context"
	"log"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/repository"
)

// StartAllocationExpiryJob periodically marks active allocations whose end
// time has passed as expired. It stops with the process context.
func StartAllocationExpiryJob(ctx context.Context, cfg config.Config, store *repository.Store) {
	if !cfg.ExpiryJobEnabled {
		return
	}
	interval := cfg.ExpiryJobInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := cfg.ExpiryJobTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				expired, err := store.ExpireAllocations(tickCtx, time.Now().UTC())
				cancel()
				if err != nil {
					log.Printf("allocation expiry job error: %v", err)
					continue
				}
				if expired > 0 {
					log.Printf("allocation expiry job expired %d allocations", expired)
				}
			}
		}
	}()
}
