package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerRegistrySetAndFire(t *testing.T) {
	clock := newFakeClock()
	r := newTimerRegistry(clock)

	fired := false
	require.NoError(t, r.set("heartbeat", 10*time.Millisecond, func() { fired = true }))
	require.True(t, r.active("heartbeat"))

	clock.Advance(5 * time.Millisecond)
	require.False(t, fired)

	clock.Advance(5 * time.Millisecond)
	require.True(t, fired)
}

func TestTimerRegistryDuplicateNameRejected(t *testing.T) {
	r := newTimerRegistry(newFakeClock())

	require.NoError(t, r.set("election", time.Second, func() {}))
	err := r.set("election", time.Second, func() {})
	require.ErrorIs(t, err, ErrTimerExists)
}

func TestTimerRegistryAdjustRequiresExisting(t *testing.T) {
	r := newTimerRegistry(newFakeClock())
	require.ErrorIs(t, r.adjust("election", time.Second), ErrTimerNotFound)
}

func TestTimerRegistryAdjustReschedulesWithoutFiring(t *testing.T) {
	clock := newFakeClock()
	r := newTimerRegistry(clock)

	calls := 0
	require.NoError(t, r.set("election", 10*time.Millisecond, func() { calls++ }))
	require.NoError(t, r.adjust("election", 100*time.Millisecond))

	clock.Advance(10 * time.Millisecond)
	require.Zero(t, calls)

	clock.Advance(90 * time.Millisecond)
	require.Equal(t, 1, calls)
}

func TestTimerRegistryClearCancelsPending(t *testing.T) {
	clock := newFakeClock()
	r := newTimerRegistry(clock)

	fired := false
	require.NoError(t, r.set("heartbeat", 10*time.Millisecond, func() { fired = true }))
	r.clear()
	require.False(t, r.active("heartbeat"))

	clock.Advance(time.Second)
	require.False(t, fired)
}
