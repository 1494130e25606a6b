package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/mfagate/internal/repositories"
)

// ExpiredPurger clears expired challenge and device state
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context, now time.Time, resetGrace time.Duration) (repositories.PurgeStats, error)
}

// CleanupManager periodically clears expired OTP challenges, reset
// challenges and trusted devices from user records
type CleanupManager struct {
	purger     ExpiredPurger
	logger     *slog.Logger
	interval   time.Duration
	resetGrace time.Duration
	now        func() time.Time
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewCleanupManager creates a new cleanup manager. resetGrace keeps reset
// challenges alive long enough for a freshly minted reset token to be redeemed.
func NewCleanupManager(
	purger ExpiredPurger,
	logger *slog.Logger,
	interval time.Duration,
	resetGrace time.Duration,
) *CleanupManager {
	return &CleanupManager{
		purger:     purger,
		logger:     logger,
		interval:   interval,
		resetGrace: resetGrace,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. It blocks until Stop is called or
// ctx is done.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stats, err := cm.purger.PurgeExpired(cleanupCtx, cm.now(), cm.resetGrace)
	if err != nil {
		cm.logger.Error("failed to purge expired mfa state", slog.Any("error", err))
		return
	}

	if stats.OTPChallenges+stats.ResetChallenges+stats.DeviceSets > 0 {
		cm.logger.Info("expired mfa state purged",
			slog.Int64("otp_challenges", stats.OTPChallenges),
			slog.Int64("reset_challenges", stats.ResetChallenges),
			slog.Int64("device_sets", stats.DeviceSets),
		)
	}
}

// Stop signals the cleanup manager to stop. It is safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
