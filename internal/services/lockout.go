package services

import (
	"time"

	"github.com/BradenHooton/mfagate/internal/models"
)

// LockoutPolicy decides when an attempt counter blocks further verifications.
// Once Count reaches MaxAttempts every attempt is rejected without looking at
// the submitted code. With Rollover the block lifts once Cooldown has passed
// since the last failure and the counter restarts from zero. Without it the
// block only lifts when a new challenge replaces the counter.
type LockoutPolicy struct {
	MaxAttempts int
	Cooldown    time.Duration
	Rollover    bool
}

// Check returns a *models.LockoutError while the counter is locked. It may
// reset the counter in place when a cooldown has elapsed.
func (p LockoutPolicy) Check(c *models.AttemptCounter, now time.Time) error {
	if c.Count < p.MaxAttempts {
		return nil
	}
	if !p.Rollover {
		return &models.LockoutError{}
	}
	if c.LastAttemptAt == nil {
		c.Count = 0
		return nil
	}

	elapsed := now.Sub(*c.LastAttemptAt)
	if elapsed > p.Cooldown {
		c.Count = 0
		c.LastAttemptAt = nil
		return nil
	}

	retryAfter := p.Cooldown - elapsed
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return &models.LockoutError{RetryAfter: retryAfter}
}

// RecordFailure counts a failed verification and returns the attempts left
func (p LockoutPolicy) RecordFailure(c *models.AttemptCounter, now time.Time) int {
	c.Count++
	c.LastAttemptAt = &now
	return max(p.MaxAttempts-c.Count, 0)
}

// Reset clears the counter after a successful verification
func (p LockoutPolicy) Reset(c *models.AttemptCounter) {
	*c = models.AttemptCounter{}
}
