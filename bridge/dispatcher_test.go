package bridge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestDispatcher_DeliversInOrderOnCaller(t *testing.T) {
	d, err := newDispatcher(64, quietLogger())
	require.NoError(t, err)

	var got []string
	d.onChunk(func(c Chunk) { got = append(got, c.Text) })

	for i := 0; i < 10; i++ {
		c := d.publish(Chunk{Kind: KindOutput, Text: fmt.Sprint(i)})
		assert.EqualValues(t, i+1, c.Seq)
		assert.False(t, c.Time.IsZero())
	}

	select {
	case <-d.ready():
	default:
		require.Fail(t, "ready not signalled")
	}

	assert.Equal(t, 10, d.dispatch())
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, got)
	assert.Equal(t, 0, d.dispatch(), "nothing left")
	assert.EqualValues(t, 10, d.published.Load())
	assert.EqualValues(t, 10, d.delivered.Load())
}

func TestDispatcher_MultipleCallbacksSeeSameStream(t *testing.T) {
	d, err := newDispatcher(16, quietLogger())
	require.NoError(t, err)

	var a, b []uint64
	d.onChunk(func(c Chunk) { a = append(a, c.Seq) })
	d.onChunk(func(c Chunk) { b = append(b, c.Seq) })
	d.onChunk(nil)

	d.publish(Chunk{Text: "x"})
	d.publish(Chunk{Text: "y"})
	d.dispatch()

	assert.Equal(t, []uint64{1, 2}, a)
	assert.Equal(t, a, b)
}

func TestDispatcher_OverflowYieldsSingleTruncationMarker(t *testing.T) {
	// GOAL: a stalled consumer loses the oldest chunks and is told exactly once
	//
	// TEST SCENARIO: publish far more than capacity without draining → one marker, newest chunk survives
	d, err := newDispatcher(8, quietLogger())
	require.NoError(t, err)

	var got []Chunk
	d.onChunk(func(c Chunk) { got = append(got, c) })

	const total = 100
	for i := 1; i <= total; i++ {
		d.publish(Chunk{Kind: KindOutput, Text: fmt.Sprint(i)})
	}
	d.dispatch()

	require.NotEmpty(t, got)
	markers := 0
	for _, c := range got {
		if c.Kind == KindDiagnostic {
			markers++
			assert.True(t, errors.Is(c.Err, ErrOutputTruncated))
			assert.Contains(t, c.Text, "chunks dropped")
		}
	}
	assert.Equal(t, 1, markers)
	assert.Equal(t, KindDiagnostic, got[0].Kind, "marker precedes the surviving chunks")

	last := got[len(got)-1]
	assert.EqualValues(t, total, last.Seq)
	assert.Equal(t, fmt.Sprint(total), last.Text)

	outputs := len(got) - markers
	assert.EqualValues(t, total-outputs, d.dropped.Load())

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Seq, got[i-1].Seq)
	}
}

func TestDispatcher_NestedDispatchIsIgnored(t *testing.T) {
	d, err := newDispatcher(16, quietLogger())
	require.NoError(t, err)

	nested := -1
	d.onChunk(func(Chunk) {
		nested = d.dispatch()
	})

	d.publish(Chunk{Text: "a"})
	assert.Equal(t, 1, d.dispatch())
	assert.Equal(t, 0, nested)
}

func TestDispatcher_ConcurrentPublishers(t *testing.T) {
	d, err := newDispatcher(4096, quietLogger())
	require.NoError(t, err)

	var seen []uint64
	d.onChunk(func(c Chunk) { seen = append(seen, c.Seq) })

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				d.publish(Chunk{Kind: KindError})
			}
		}()
	}
	wg.Wait()
	d.dispatch()

	require.Len(t, seen, 1000)
	for i, seq := range seen {
		assert.EqualValues(t, i+1, seq)
	}
}

func TestNewDispatcher_RejectsZeroCapacity(t *testing.T) {
	d, err := newDispatcher(0, quietLogger())
	assert.Error(t, err)
	assert.Nil(t, d)
}
