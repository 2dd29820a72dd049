package ripple

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amps(sources []Source) []float32 {
	out := make([]float32, len(sources))
	for i, s := range sources {
		out[i] = s.Amplitude
	}
	return out
}

func TestNewSourceClampsPosition(t *testing.T) {
	s := NewSource(-0.5, 1.7, 1, 2)
	assert.Equal(t, 0.0, s.U)
	assert.Equal(t, 1.0, s.V)

	c := CellSource(5, 1, 4, 0, 1, 1)
	assert.Equal(t, 1.0, c.U)
	assert.Equal(t, 0.0, c.V)
}

func TestQueueDrainsOldestFirstAndDropsExcess(t *testing.T) {
	q := NewSourceQueue(2, DropExcess, 4)
	for i := 1; i <= 4; i++ {
		require.True(t, q.Enqueue(Source{Amplitude: float32(i)}))
	}

	got := q.Drain(nil)
	assert.Equal(t, []float32{1, 2}, amps(got))
	assert.Zero(t, q.Len(), "excess is cleared, not carried")
	assert.Empty(t, q.Drain(got))

	st := q.Stats()
	assert.Equal(t, uint64(4), st.Enqueued)
	assert.Equal(t, uint64(2), st.Drained)
	assert.Equal(t, uint64(2), st.Dropped)
}

func TestQueueCarryForwardKeepsRemainder(t *testing.T) {
	q := NewSourceQueue(2, CarryForward, 8)
	for i := 1; i <= 5; i++ {
		require.True(t, q.Enqueue(Source{Amplitude: float32(i)}))
	}
	assert.Equal(t, []float32{1, 2}, amps(q.Drain(nil)))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []float32{3, 4}, amps(q.Drain(nil)))
	assert.Equal(t, []float32{5}, amps(q.Drain(nil)))
	assert.Zero(t, q.Stats().Dropped)
}

func TestQueueRejectsNewestWhenFull(t *testing.T) {
	q := NewSourceQueue(2, DropExcess, 0)
	assert.True(t, q.Enqueue(Source{Amplitude: 1}))
	assert.True(t, q.Enqueue(Source{Amplitude: 2}))
	assert.False(t, q.Enqueue(Source{Amplitude: 3}))
	assert.Equal(t, []float32{1, 2}, amps(q.Drain(nil)))
	assert.Equal(t, uint64(1), q.Stats().Rejected)
}

func TestQueueClear(t *testing.T) {
	q := NewSourceQueue(3, CarryForward, 3)
	q.Enqueue(Source{})
	q.Enqueue(Source{})
	q.Clear()
	assert.Zero(t, q.Len())
	assert.Equal(t, CarryForward, q.Policy())
}

func TestQueueConcurrentProducer(t *testing.T) {
	const total = 2000
	q := NewSourceQueue(8, DropExcess, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Enqueue(Source{Amplitude: 1})
			if i%16 == 0 {
				runtime.Gosched()
			}
		}
	}()

	var drained int
	buf := make([]Source, 0, 8)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		buf = q.Drain(buf)
		assert.LessOrEqual(t, len(buf), 8)
		drained += len(buf)
		runtime.Gosched()
	}
	drained += len(q.Drain(buf))

	st := q.Stats()
	assert.Equal(t, uint64(drained), st.Drained)
	assert.Equal(t, uint64(total), st.Drained+st.Dropped+st.Rejected)
}

func TestParseDrainPolicy(t *testing.T) {
	assert.Equal(t, CarryForward, ParseDrainPolicy("carry"))
	assert.Equal(t, DropExcess, ParseDrainPolicy("drop"))
	assert.Equal(t, DropExcess, ParseDrainPolicy(""))
	assert.Equal(t, "carry", CarryForward.String())
	assert.Equal(t, "drop", DropExcess.String())
}
