// internal/controller/state.go
package controller

import (
	"context"
	"math"
	"sync"

	"github.com/tamzrod/fanctl/internal/snapshot"
)

// state is the aggregate shared by ingress and egress.
// All fields are guarded by mu; cond is signalled when dirty becomes true.
type state struct {
	mu   sync.Mutex
	cond *sync.Cond

	sensors snapshot.SensorSnapshot // last-known, always a whole published snapshot
	faulted int                     // entries whose last raw value was non-finite
	dirty   bool
}

func newState(sensorCount int) *state {
	s := &state{sensors: snapshot.NewSensorSnapshot(sensorCount)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// apply merges in into the last-known snapshot.
// It reports whether any entry (id or sanitized value) differed.
func (s *state) apply(in snapshot.SensorSnapshot) (changed bool, faulted int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.sensors.Len()
	if m := in.Len(); m < n {
		n = m
	}

	faulted = 0
	for i := 0; i < n; i++ {
		next := in.Sensors[i]
		if math.IsNaN(next.Value) || math.IsInf(next.Value, 0) {
			faulted++
		}
		next.Value = snapshot.Sanitize(next.Value)

		if s.sensors.Sensors[i] != next {
			s.sensors.Sensors[i] = next
			changed = true
		}
	}
	s.faulted = faulted

	if changed {
		s.dirty = true
		s.cond.Signal()
	}
	return changed, faulted
}

// await blocks until dirty is set or ctx is done. On success it clears dirty
// and returns the aggregate computed under the same lock.
func (s *state) await(ctx context.Context) (maxTemperature float64, faulted int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.dirty && ctx.Err() == nil {
		s.cond.Wait()
	}
	if ctx.Err() != nil {
		return 0, 0, false
	}

	s.dirty = false
	return s.sensors.Max(), s.faulted, true
}

// wake releases every waiter so it can observe a cancelled context.
func (s *state) wake() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// current returns a copy of the last-known sensors.
func (s *state) current() snapshot.SensorSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensors
}
