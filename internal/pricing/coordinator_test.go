package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_FirstCallerLeads(t *testing.T) {
	c := NewCoordinator()

	leader, release, err := c.Acquire(context.Background(), "fp", false)
	require.NoError(t, err)
	assert.True(t, leader)
	assert.True(t, c.InFlight("fp"))

	release()
	assert.False(t, c.InFlight("fp"))
	release() // second call is a no-op
}

func TestCoordinator_WaiterWakesOnRelease(t *testing.T) {
	c := NewCoordinator()
	_, release, err := c.Acquire(context.Background(), "fp", false)
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		leader, _, err := c.Acquire(context.Background(), "fp", false)
		assert.NoError(t, err)
		done <- leader
	}()

	require.Eventually(t, func() bool { return c.Waiting("fp") == 1 }, time.Second, time.Millisecond)
	release()

	select {
	case leader := <-done:
		assert.False(t, leader)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
	assert.Equal(t, 0, c.Waiting("fp"))
}

func TestCoordinator_NonBlockingBusy(t *testing.T) {
	c := NewCoordinator()
	_, release, err := c.Acquire(context.Background(), "fp", false)
	require.NoError(t, err)
	defer release()

	leader, rel, err := c.Acquire(context.Background(), "fp", true)
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, leader)
	assert.Nil(t, rel)
}

func TestCoordinator_KeysAreIndependent(t *testing.T) {
	c := NewCoordinator()
	_, releaseA, err := c.Acquire(context.Background(), "a", true)
	require.NoError(t, err)
	defer releaseA()

	leader, releaseB, err := c.Acquire(context.Background(), "b", true)
	require.NoError(t, err)
	assert.True(t, leader)
	releaseB()
}

func TestCoordinator_WaitRespectsContext(t *testing.T) {
	c := NewCoordinator()
	_, release, err := c.Acquire(context.Background(), "fp", false)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = c.Acquire(ctx, "fp", false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Waiting("fp"))
}

func TestCoordinator_ReleasedOnPanic(t *testing.T) {
	c := NewCoordinator()

	func() {
		defer func() { _ = recover() }()
		_, release, err := c.Acquire(context.Background(), "fp", false)
		require.NoError(t, err)
		defer release()
		panic("boom")
	}()

	assert.False(t, c.InFlight("fp"))
	leader, release, err := c.Acquire(context.Background(), "fp", true)
	require.NoError(t, err)
	assert.True(t, leader)
	release()
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), ""},
		{"direct", newError(KindBusy, ErrBusy), KindBusy},
		{"wrapped", errors.Join(errors.New("ctx"), newError(KindNotFound, nil)), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "Busy", newError(KindBusy, nil).Error())
	assert.Equal(t, "NotFound: missing", newError(KindNotFound, errors.New("missing")).Error())
}
