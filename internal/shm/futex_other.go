//go:build unix && !linux

package shm

import (
	"sync/atomic"
	"time"
)

// pollInterval replaces the futex sleep where no futex is available.
const pollInterval = time.Millisecond

func futexWait(addr *uint32, val uint32) {
	if atomic.LoadUint32(addr) != val {
		return
	}
	time.Sleep(pollInterval)
}

func futexWake(addr *uint32, n int) {}
