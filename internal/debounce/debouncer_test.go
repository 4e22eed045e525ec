package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_FiresOnceAfterBurst(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	d := New(mock, 2*time.Second, func() { atomic.AddInt32(&calls, 1) })

	for i := 0; i < 10; i++ {
		d.Trigger()
		mock.Add(500 * time.Millisecond)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.True(t, d.Pending())

	mock.Add(2 * time.Second)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, d.Pending())

	mock.Add(10 * time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDebouncer_Cancel(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	d := New(mock, time.Second, func() { atomic.AddInt32(&calls, 1) })

	assert.False(t, d.Cancel())

	d.Trigger()
	assert.True(t, d.Cancel())
	mock.Add(5 * time.Second)

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.False(t, d.Pending())
}

func TestDebouncer_TriggerAfterFireSchedulesAgain(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	d := New(mock, time.Second, func() { atomic.AddInt32(&calls, 1) })

	d.Trigger()
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	d.Trigger()
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncer_StaleFireIgnored(t *testing.T) {
	var calls int32
	d := New(clock.NewMock(), time.Second, func() { atomic.AddInt32(&calls, 1) })

	d.Trigger()
	d.Trigger()
	d.fire(1)

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.True(t, d.Pending())
}
