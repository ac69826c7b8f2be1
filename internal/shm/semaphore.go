//go:build unix

package shm

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// rewakeInterval spaces the wakes sent to a waiter whose context was cancelled.
const rewakeInterval = time.Millisecond

// semaphore is a counting semaphore that lives inside shared memory.
// Both words are only touched atomically; the zero value has count 0.
type semaphore struct {
	count   uint32
	waiters uint32 // sleepers in futexWait; lets post skip the wake syscall
}

func (s *semaphore) init(n uint32) {
	atomic.StoreUint32(&s.waiters, 0)
	atomic.StoreUint32(&s.count, n)
}

func (s *semaphore) value() uint32 {
	return atomic.LoadUint32(&s.count)
}

func (s *semaphore) tryWait() bool {
	for {
		n := atomic.LoadUint32(&s.count)
		if n == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&s.count, n, n-1) {
			return true
		}
	}
}

// wait decrements the count, sleeping while it is zero.
// Sleeps are unbounded; cancelling ctx wakes the sleeper, and no token is
// taken on cancellation.
func (s *semaphore) wait(ctx context.Context) error {
	if s.tryWait() {
		return nil
	}

	if ctx.Done() != nil {
		var waiting atomic.Bool
		waiting.Store(true)
		stop := context.AfterFunc(ctx, func() { s.interrupt(&waiting) })
		defer func() {
			waiting.Store(false)
			stop()
		}()
	}

	for {
		if s.tryWait() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// waiters is raised before the kernel re-checks count == 0,
		// so a post that misses the increment is seen by futexWait.
		atomic.AddUint32(&s.waiters, 1)
		futexWait(&s.count, 0)
		atomic.AddUint32(&s.waiters, ^uint32(0))
	}
}

// interrupt wakes sleepers on s until the cancelled waiter has returned.
// A wake landing between its ctx check and its sleep is lost, so it repeats.
func (s *semaphore) interrupt(waiting *atomic.Bool) {
	for waiting.Load() {
		futexWake(&s.count, math.MaxInt32)
		time.Sleep(rewakeInterval)
	}
}

func (s *semaphore) post() {
	atomic.AddUint32(&s.count, 1)
	if atomic.LoadUint32(&s.waiters) != 0 {
		futexWake(&s.count, 1)
	}
}
