// internal/duty/duty_test.go
package duty

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/fanctl/internal/snapshot"
)

func TestDutyCycle(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want float64
	}{
		{"cold", -10, 20},
		{"at low cutoff", 25, 20},
		{"just above low cutoff", 26, 21.6},
		{"midpoint", 50, 60},
		{"sixty", 60, 76},
		{"just below high cutoff", 74, 98.4},
		{"at high cutoff", 75, 100},
		{"hot", 120, 100},
		{"nan", math.NaN(), 100},
		{"minus inf", math.Inf(-1), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DutyCycle(tt.temp), 1e-9)
		})
	}
}

func TestCompute_KnownPoints(t *testing.T) {
	caps := []uint32{200, 150, 7, 0}

	low := Compute(25, caps)
	assert.Equal(t, []uint32{40, 30, 2, 0}, low.Slice()) // ceil(0.2 * cap)

	mid := Compute(50, caps)
	assert.Equal(t, []uint32{120, 90, 5, 0}, mid.Slice()) // ceil(0.6 * cap)

	for _, temp := range []float64{75, 80, 1000} {
		full := Compute(temp, caps)
		assert.Equal(t, caps, full.Slice(), "temp=%v", temp)
	}
}

func TestCompute_EndToEndValues(t *testing.T) {
	caps := []uint32{200, 150}

	assert.Equal(t, []uint32{200, 150}, Compute(80, caps).Slice())
	assert.Equal(t, []uint32{152, 114}, Compute(60, caps).Slice())
}

func TestCompute_Monotonic(t *testing.T) {
	caps := []uint32{1, 3, 77, 150, 200, 255, 1000, 65535}

	prev := Compute(-20, caps)
	for temp := -20.0; temp <= 100; temp += 0.1 {
		cur := Compute(temp, caps)
		for i := range caps {
			require.GreaterOrEqual(t, cur.Values[i], prev.Values[i],
				"fan %d decreased at %.2f", i, temp)
			require.LessOrEqual(t, cur.Values[i], caps[i])
		}
		prev = cur
	}
}

func TestCompute_ClampsFanCount(t *testing.T) {
	caps := make([]uint32, snapshot.MaxFans+2)
	for i := range caps {
		caps[i] = 100
	}

	out := Compute(100, caps)
	assert.Equal(t, snapshot.MaxFans, out.Len())
}

func TestPulseWidth_RoundsUp(t *testing.T) {
	assert.Equal(t, uint32(1), PulseWidth(20, 1))  // 0.2 -> 1
	assert.Equal(t, uint32(31), PulseWidth(20, 151)) // 30.2 -> 31
	assert.Equal(t, uint32(0), PulseWidth(0, 100))
}
