package debounce

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAfter_CoalescesBurst(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	const delay = 100 * time.Millisecond
	var runs atomic.Int32
	fired := make(chan time.Time, 10)
	action := func() error {
		runs.Add(1)
		fired <- time.Now()
		return nil
	}

	var last time.Time
	for i := 0; i < 10; i++ {
		last = time.Now()
		s.RunAfter("refresh", delay, action)
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(last), delay-5*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("coalesced action never ran")
	}

	time.Sleep(3 * delay)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, s.Pending("refresh"))
}

func TestRunAfter_IndependentIDs(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var a, b atomic.Int32
	s.RunAfter("a", 20*time.Millisecond, func() error { a.Add(1); return nil })
	s.RunAfter("b", 20*time.Millisecond, func() error { b.Add(1); return nil })

	require.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var runs atomic.Int32
	s.RunAfter("refresh", 50*time.Millisecond, func() error { runs.Add(1); return nil })
	assert.True(t, s.Pending("refresh"))
	assert.True(t, s.Cancel("refresh"))
	assert.False(t, s.Cancel("refresh"))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestRunAfter_FailureDoesNotBlockRescheduling(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var runs atomic.Int32
	s.RunAfter("refresh", 10*time.Millisecond, func() error {
		runs.Add(1)
		return errors.New("interface enumeration failed")
	})
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.RunAfter("refresh", 10*time.Millisecond, func() error {
		runs.Add(1)
		panic("device vanished")
	})
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	s.RunAfter("refresh", 10*time.Millisecond, func() error { runs.Add(1); return nil })
	require.Eventually(t, func() bool { return runs.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestStop_CancelsAll(t *testing.T) {
	s := NewScheduler()

	var runs atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		s.RunAfter(id, 30*time.Millisecond, func() error { runs.Add(1); return nil })
	}
	s.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, runs.Load())
}
