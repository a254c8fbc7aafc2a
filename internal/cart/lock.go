package cart

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const defaultLockWait = 5 * time.Second

func errCartBusy() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "cart is busy, retry the request")
}

// LocalLocker is an in-process keyed lock. Slots are created on demand and
// dropped once nobody holds or waits on them.
type LocalLocker struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*ownerSlot
}

type ownerSlot struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker returns a locker whose Lock gives up after wait.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &LocalLocker{wait: wait, slots: make(map[string]*ownerSlot)}
}

func (l *LocalLocker) acquireSlot(owner string) *ownerSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[owner]
	if !ok {
		slot = &ownerSlot{sem: make(chan struct{}, 1)}
		l.slots[owner] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) releaseSlot(owner string, slot *ownerSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, owner)
	}
}

// Lock blocks until owner's slot is free, ctx is done, or the wait elapses.
func (l *LocalLocker) Lock(ctx context.Context, owner string) (func(), error) {
	slot := l.acquireSlot(owner)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	select {
	case slot.sem <- struct{}{}:
	case <-waitCtx.Done():
		l.releaseSlot(owner, slot)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errCartBusy()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.sem
			l.releaseSlot(owner, slot)
		})
	}, nil
}

// held reports the number of live slots; used by tests.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
