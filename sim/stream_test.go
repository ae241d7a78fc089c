package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityCounter_LIFO_Increases(t *testing.T) {
	var c priorityCounter
	first := c.assignPriority(PriorityLIFO)
	second := c.assignPriority(PriorityLIFO)
	assert.Less(t, first, second, "LIFO priority must increase with issuance order, so later issues sort first")
}

func TestPriorityCounter_FIFO_Decreases(t *testing.T) {
	var c priorityCounter
	first := c.assignPriority(PriorityFIFO)
	second := c.assignPriority(PriorityFIFO)
	assert.Greater(t, first, second, "FIFO priority must decrease with issuance order, so earlier issues sort first")
}

func TestPriorityCounter_None_BehavesLikeFIFO(t *testing.T) {
	var c priorityCounter
	first := c.assignPriority(PriorityNone)
	second := c.assignPriority(PriorityNone)
	assert.Greater(t, first, second)
}

func TestPriorityCounter_Highest_AlwaysSentinel(t *testing.T) {
	var c priorityCounter
	c.assignPriority(PriorityLIFO)
	h := c.assignPriority(PriorityHighest)
	assert.Equal(t, highestPrioritySentinel, h)
}

func TestPriorityCounter_UnknownPolicyPanics(t *testing.T) {
	var c priorityCounter
	assert.Panics(t, func() { c.assignPriority(PriorityPolicy(99)) })
}

func TestStream_AdvanceAndFinished(t *testing.T) {
	phases := []*CollectivePhase{{Handle: 1, Dim: 0}, {Handle: 2, Dim: 1}}
	st := NewStream(1, 0, phases, 4096, 0)

	assert.False(t, st.Finished())
	assert.Equal(t, phases[0], st.CurrentPhase())
	assert.Equal(t, 2, st.RemainingPhases())

	st.Advance()
	assert.False(t, st.Finished())
	assert.Equal(t, phases[1], st.CurrentPhase())
	assert.Equal(t, 1, st.RemainingPhases())

	st.Advance()
	assert.True(t, st.Finished())
	assert.Nil(t, st.CurrentPhase())
	assert.Equal(t, 0, st.RemainingPhases())
}

func TestStream_MarkInitialized(t *testing.T) {
	st := NewStream(1, 0, []*CollectivePhase{{Handle: 1}}, 100, 0)
	assert.False(t, st.Initialized())
	st.MarkInitialized()
	assert.True(t, st.Initialized())
	assert.Equal(t, StreamExecuting, st.state)
}

func TestStream_InitialDataSize(t *testing.T) {
	st := NewStream(1, 0, nil, 65536, 0)
	assert.Equal(t, int64(65536), st.InitialDataSize())
}

func TestNewStream_DimDerivedFromFirstPhase(t *testing.T) {
	st := NewStream(1, 0, []*CollectivePhase{{Handle: 1, Dim: 3}}, 100, 0)
	assert.Equal(t, 3, st.dim)
}

func TestNewStream_NoPhasesDimIsSentinel(t *testing.T) {
	st := NewStream(1, 0, nil, 100, 0)
	assert.Equal(t, -1, st.dim)
}
