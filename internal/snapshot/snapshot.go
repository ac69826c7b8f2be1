// internal/snapshot/snapshot.go
package snapshot

import (
	"errors"
	"fmt"
	"math"
)

// ErrSensorRange is returned when a sensor id is outside the configured count.
var ErrSensorRange = errors.New("snapshot: sensor id out of range")

// Sensor is one temperature reading.
// Plain value type: it is copied verbatim into shared memory.
type Sensor struct {
	ID    int32
	Value float64
}

// SensorSnapshot carries every sensor value at one instant.
// Only the first Count entries are meaningful; all of them are always populated.
type SensorSnapshot struct {
	Count   uint32
	Sensors [MaxSensors]Sensor
}

// RegisterSnapshot carries one pulse-width value per fan.
type RegisterSnapshot struct {
	Count  uint32
	Values [MaxFans]uint32
}

// NewSensorSnapshot returns a snapshot of count sensors, each holding its id
// and DefaultTemperature. count is clamped to [0, MaxSensors].
func NewSensorSnapshot(count int) SensorSnapshot {
	count = clamp(count, MaxSensors)

	s := SensorSnapshot{Count: uint32(count)}
	for i := 0; i < count; i++ {
		s.Sensors[i] = Sensor{ID: int32(i), Value: DefaultTemperature}
	}
	return s
}

// Len returns the number of meaningful entries.
func (s SensorSnapshot) Len() int {
	return clamp(int(s.Count), MaxSensors)
}

// Set replaces the value of sensor id.
func (s *SensorSnapshot) Set(id int, value float64) error {
	if id < 0 || id >= s.Len() {
		return fmt.Errorf("%w: id=%d count=%d", ErrSensorRange, id, s.Count)
	}
	s.Sensors[id] = Sensor{ID: int32(id), Value: value}
	return nil
}

// Values returns the meaningful temperatures in index order.
func (s SensorSnapshot) Values() []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		out[i] = s.Sensors[i].Value
	}
	return out
}

// Max returns the highest temperature among the meaningful entries.
// Non-finite values count as DefaultTemperature. An empty snapshot
// reports DefaultTemperature.
func (s SensorSnapshot) Max() float64 {
	n := s.Len()
	if n == 0 {
		return DefaultTemperature
	}

	hi := Sanitize(s.Sensors[0].Value)
	for i := 1; i < n; i++ {
		if v := Sanitize(s.Sensors[i].Value); v > hi {
			hi = v
		}
	}
	return hi
}

// Sanitize maps non-finite temperatures onto DefaultTemperature.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return DefaultTemperature
	}
	return v
}

// NewRegisterSnapshot returns a zeroed snapshot of count fans.
func NewRegisterSnapshot(count int) RegisterSnapshot {
	return RegisterSnapshot{Count: uint32(clamp(count, MaxFans))}
}

// Len returns the number of meaningful entries.
func (r RegisterSnapshot) Len() int {
	return clamp(int(r.Count), MaxFans)
}

// Slice returns the meaningful pulse-width values in fan order.
func (r RegisterSnapshot) Slice() []uint32 {
	out := make([]uint32, r.Len())
	copy(out, r.Values[:len(out)])
	return out
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
