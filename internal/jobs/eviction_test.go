package jobs

import (
	"context"
	"testing"
	"time"

	"schoolbridge/portal/internal/config"
)

type recordingEvictor struct {
	calls chan time.Duration
}

func (r *recordingEvictor) Evict(idle time.Duration) int {
	select {
	case r.calls <- idle:
	default:
	}
	return 1
}

func TestEvictionJobTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evictor := &recordingEvictor{calls: make(chan time.Duration, 1)}
	StartEvictionJob(ctx, config.Config{InstallationIdleTTL: time.Hour, EvictionInterval: 5 * time.Millisecond}, evictor)

	select {
	case idle := <-evictor.calls:
		if idle != time.Hour {
			t.Fatalf("expected idle ttl 1h, got %s", idle)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("eviction job did not run")
	}
}

func TestEvictionJobDisabledWithoutTTL(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evictor := &recordingEvictor{calls: make(chan time.Duration, 1)}
	StartEvictionJob(ctx, config.Config{EvictionInterval: 5 * time.Millisecond}, evictor)

	select {
	case <-evictor.calls:
		t.Fatalf("eviction job should not run without a ttl")
	case <-time.After(50 * time.Millisecond):
	}
}
