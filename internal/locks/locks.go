// Package locks serializes read-modify-write cycles on a single user record.
package locks

import (
	"context"
	"errors"
)

// ErrLockUnavailable is returned when a lock cannot be acquired before the
// context is done.
var ErrLockUnavailable = errors.New("user lock unavailable")

// UserLocker hands out exclusive per-user locks. The returned release function
// must be called exactly once.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (release func(), err error)
}
