package backup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotterMock struct {
	calls int32
	count int
	err   error
}

func (s *snapshotterMock) Backup() (int, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.count, s.err
}

func TestScheduler_RunsImmediately(t *testing.T) {
	snap := &snapshotterMock{count: 3}
	sched := Scheduler{Cron: cron.New(), Snapshotter: snap, Spec: "@daily"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- sched.Do(ctx) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&snap.calls) == 1 },
		time.Second, 10*time.Millisecond, "one immediate backup on start")

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_Periodic(t *testing.T) {
	snap := &snapshotterMock{count: 1}
	sched := Scheduler{Cron: cron.New(), Snapshotter: snap, Spec: "@every 1s"}

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	done := make(chan error)
	go func() { done <- sched.Do(ctx) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&snap.calls) >= 3 },
		3*time.Second, 50*time.Millisecond, "immediate run plus at least two scheduled runs")

	require.NoError(t, <-done)
}

func TestScheduler_BadSpec(t *testing.T) {
	sched := Scheduler{Cron: cron.New(), Snapshotter: &snapshotterMock{}, Spec: "not a spec"}
	err := sched.Do(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't parse backup schedule")
}

func TestScheduler_FailureSwallowed(t *testing.T) {
	snap := &snapshotterMock{err: errors.New("quota exceeded")}
	sched := Scheduler{Cron: cron.New(), Snapshotter: snap, Spec: "@daily"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- sched.Do(ctx) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&snap.calls) == 1 },
		time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done, "failed backup never fails the scheduler")
}

func TestScheduler_ManualRun(t *testing.T) {
	snap := &snapshotterMock{count: 2}
	sched := Scheduler{Cron: cron.New(), Snapshotter: snap, Spec: "@daily"}

	sched.Run()
	sched.Run()
	assert.Equal(t, int32(2), atomic.LoadInt32(&snap.calls))
}
