package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Local serialises callers per key inside one process. It backs the memory
// store driver and tests where no Redis is available.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
	// MaxWait bounds acquisition; zero waits until ctx is done.
	MaxWait time.Duration
}

// slot is dropped from the map once no caller holds or waits for it.
type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// WithLock runs fn while holding key. ttl is ignored: the slot is held until
// fn returns.
func (l *Local) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	waitCtx := ctx
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}
	s := l.acquireSlot(key)
	defer l.releaseSlot(key, s)
	select {
	case s.ch <- struct{}{}:
	case <-waitCtx.Done():
		return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, waitCtx.Err())
	}
	defer func() { <-s.ch }()
	return fn(ctx)
}
