// Package sync provides synchronization primitives and key hashing shared by
// the pidx components.
package sync

import (
	"sync"
	"sync/atomic"
)

// ResettableOnce is like sync.Once but can be reset, and it does not latch
// when the function fails.
//
// The identifier generator loads its digit block through it: a failed
// warm-up leaves it open for the next caller and Reset forces a reload.
type ResettableOnce struct {
	done atomic.Bool
	m    sync.Mutex
}

// Do calls f if Do has not completed since the last Reset.
// Concurrent callers block until f returns.
func (o *ResettableOnce) Do(f func()) {
	if o.done.Load() {
		return
	}

	o.m.Lock()
	defer o.m.Unlock()

	if !o.done.Load() {
		defer o.done.Store(true)
		f()
	}
}

// DoWithError is Do for fallible initialization. If f returns an error the
// once stays open and the error is returned.
func (o *ResettableOnce) DoWithError(f func() error) error {
	if o.done.Load() {
		return nil
	}

	o.m.Lock()
	defer o.m.Unlock()

	if !o.done.Load() {
		if err := f(); err != nil {
			return err
		}
		o.done.Store(true)
	}
	return nil
}

// Reset allows the next Do to run again. It waits for an in-flight Do.
func (o *ResettableOnce) Reset() {
	o.m.Lock()
	defer o.m.Unlock()
	o.done.Store(false)
}

// Done reports whether Do has completed since the last Reset.
func (o *ResettableOnce) Done() bool {
	return o.done.Load()
}
