package jobs

import (
	"context"
	"log"
	"time"

	"schoolbridge/portal/internal/config"
)

type Evictor interface {
	Evict(idle time.Duration) int
}

// StartEvictionJob periodically drops installation cores idle for longer than
// the configured TTL. Persisted state is untouched.
func StartEvictionJob(ctx context.Context, cfg config.Config, registry Evictor) {
	if registry == nil {
		log.Printf("eviction job disabled: registry not configured")
		return
	}
	idle := cfg.InstallationIdleTTL
	if idle <= 0 {
		log.Printf("eviction job disabled: no idle ttl")
		return
	}
	interval := cfg.EvictionInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.Evict(idle); n > 0 {
					log.Printf("eviction job dropped %d installations", n)
				}
			}
		}
	}()
}
