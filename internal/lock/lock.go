// Package lock guards per-slot critical sections.
package lock

import (
	"context"
	"errors"
)

var ErrNotAcquired = errors.New("slot lock not acquired")

// Locker runs fn while holding the lock for key. It never waits: if the key is
// already held it returns ErrNotAcquired.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SlotKey is the lock key for one doctor slot.
func SlotKey(doctorID, date, slotID string) string {
	return "lock:slot:" + doctorID + ":" + date + ":" + slotID
}
