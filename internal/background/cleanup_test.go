package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/mfagate/internal/repositories"
)

type mockPurger struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
	ran   chan struct{}
}

func (m *mockPurger) PurgeExpired(ctx context.Context, now time.Time, resetGrace time.Duration) (repositories.PurgeStats, error) {
	m.mu.Lock()
	m.calls = append(m.calls, resetGrace)
	m.mu.Unlock()
	select {
	case m.ran <- struct{}{}:
	default:
	}
	return repositories.PurgeStats{OTPChallenges: 1}, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupManager_RunsOnStartAndStops(t *testing.T) {
	purger := &mockPurger{ran: make(chan struct{}, 1)}
	cm := NewCleanupManager(purger, testLogger(), time.Hour, 15*time.Minute)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	select {
	case <-purger.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not run on start")
	}

	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup manager did not stop")
	}

	purger.mu.Lock()
	defer purger.mu.Unlock()
	require.Len(t, purger.calls, 1)
	assert.Equal(t, 15*time.Minute, purger.calls[0])
}

func TestCleanupManager_SurvivesPurgeError(t *testing.T) {
	purger := &mockPurger{err: errors.New("db down"), ran: make(chan struct{}, 1)}
	cm := NewCleanupManager(purger, testLogger(), 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	// A failed run must not stop later ticks
	for i := 0; i < 2; i++ {
		select {
		case <-purger.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("cleanup run %d did not happen", i+1)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup manager ignored context cancellation")
	}
}
