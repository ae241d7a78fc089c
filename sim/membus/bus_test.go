package membus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearBus_ChargesFixedOverheadPlusPerByteRate(t *testing.T) {
	b := &LinearBus{FixedOverhead: 10, CyclesPerByte: 0.5}
	assert.Equal(t, int64(10+512), b.ReadDelay(1024))
	assert.Equal(t, int64(10+512), b.WriteDelay(1024))
}

func TestLinearBus_ZeroBytesIsFixedOverheadOnly(t *testing.T) {
	b := &LinearBus{FixedOverhead: 10, CyclesPerByte: 0.5}
	assert.Equal(t, int64(10), b.ReadDelay(0))
}

func TestNoBus_AlwaysZero(t *testing.T) {
	var b NoBus
	assert.Equal(t, int64(0), b.ReadDelay(1<<30))
	assert.Equal(t, int64(0), b.WriteDelay(1<<30))
}
