// Package lock serializes per-user read-check-write sequences, such as
// counting a free user's alerts before creating another one.
package lock

import (
	"context"
	"sync"
)

// userSlot is a one-token semaphore shared by every waiter on a user.
type userSlot struct {
	token   chan struct{}
	waiters int
}

// UserLock hands out per-user mutual exclusion. Slots are dropped once no
// goroutine holds or waits on them, so the map stays bounded by concurrency.
type UserLock struct {
	mu    sync.Mutex
	slots map[int64]*userSlot
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{slots: make(map[int64]*userSlot)}
}

func (ul *UserLock) acquireSlot(userID int64) *userSlot {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	s, ok := ul.slots[userID]
	if !ok {
		s = &userSlot{token: make(chan struct{}, 1)}
		ul.slots[userID] = s
	}
	s.waiters++
	return s
}

func (ul *UserLock) releaseSlot(userID int64, s *userSlot) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(ul.slots, userID)
	}
}

// Lock blocks until the user's lock is held or ctx is done.
func (ul *UserLock) Lock(ctx context.Context, userID int64) error {
	s := ul.acquireSlot(userID)
	select {
	case s.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.releaseSlot(userID, s)
		return ErrLockTimeout
	}
}

// Unlock releases a lock taken with Lock.
func (ul *UserLock) Unlock(userID int64) {
	ul.mu.Lock()
	s, ok := ul.slots[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}
	<-s.token
	ul.releaseSlot(userID, s)
}

// WithLock runs fn while holding the user's lock.
func (ul *UserLock) WithLock(ctx context.Context, userID int64, fn func() error) error {
	if err := ul.Lock(ctx, userID); err != nil {
		return err
	}
	defer ul.Unlock(userID)
	return fn()
}

// held reports how many users currently hold or wait on a lock.
func (ul *UserLock) held() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.slots)
}
