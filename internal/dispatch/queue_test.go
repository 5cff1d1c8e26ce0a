package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint32
		wantErr  string
	}{
		{name: "zero capacity", capacity: 0, wantErr: "must be > 0"},
		{name: "too large", capacity: MaxCapacity + 1, wantErr: "exceeds maximum"},
		{name: "valid", capacity: 16},
		{name: "max allowed", capacity: MaxCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New[int](tt.capacity)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Nil(t, q)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.GreaterOrEqual(t, q.Cap(), tt.capacity-1)
		})
	}
}

func TestQueue_PreservesOrder(t *testing.T) {
	q, err := New[int](64)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := q.Push(i)
		require.NoError(t, err)
	}

	var got []int
	n, err := q.Drain(func(v int) { got = append(got, v) })
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)

	m := q.Metrics()
	assert.EqualValues(t, 20, m.Pushed)
	assert.EqualValues(t, 20, m.Drained)
}

func TestQueue_ReadySignalCoalesces(t *testing.T) {
	q, err := New[string](8)
	require.NoError(t, err)

	_, _ = q.Push("a")
	_, _ = q.Push("b")

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		require.Fail(t, "ready was not signalled")
	}

	// second signal must not be pending: both pushes share one wake-up
	select {
	case <-q.Ready():
		require.Fail(t, "ready signalled twice")
	default:
	}

	var got []string
	_, err = q.Drain(func(s string) { got = append(got, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQueue_OverflowDropsOldest(t *testing.T) {
	q, err := New[int](8)
	require.NoError(t, err)

	total := int(q.Cap()) * 4
	for i := 0; i < total; i++ {
		_, err := q.Push(i)
		require.NoError(t, err)
	}

	var got []int
	_, err = q.Drain(func(v int) { got = append(got, v) })
	require.NoError(t, err)

	require.NotEmpty(t, got)
	assert.Less(t, len(got), total, "overflow must drop elements")
	assert.Equal(t, total-1, got[len(got)-1], "newest element must survive")
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1], "order must be preserved")
	}
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	// GOAL: a single producer and a draining consumer never observe reordering
	//
	// TEST SCENARIO: producer pushes 0..N-1 while consumer drains on Ready → values strictly increase
	q, err := New[int](1024)
	require.NoError(t, err)

	const total = 5000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			_, _ = q.Push(i)
		}
	}()

	last := -1
	deadline := time.After(5 * time.Second)
	for last < total-1 {
		select {
		case <-q.Ready():
			_, err := q.Drain(func(v int) {
				assert.Greater(t, v, last)
				last = v
			})
			require.NoError(t, err)
		case <-deadline:
			require.Failf(t, "timeout", "last value seen: %d", last)
		}
	}
	wg.Wait()
}
