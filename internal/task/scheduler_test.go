package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haierkeys/notegpt-sync-service/pkg/safe_close"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTask struct {
	schedule string
	startup  bool
	runs     atomic.Int32
	err      error
	panics   bool
}

func (t *fakeTask) Name() string       { return "fake" }
func (t *fakeTask) Schedule() string   { return t.schedule }
func (t *fakeTask) IsStartupRun() bool { return t.startup }

func (t *fakeTask) Run(context.Context) error {
	t.runs.Add(1)
	if t.panics {
		panic("boom")
	}
	return t.err
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := NewScheduler(zaptest.NewLogger(t), safe_close.NewSafeClose())
	require.Error(t, s.AddTask(&fakeTask{schedule: "every now and then"}))
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.AddTask(&fakeTask{schedule: "@every 10m"}))
	require.NoError(t, s.AddTask(&fakeTask{schedule: "*/5 * * * *"}))
	assert.Equal(t, 2, s.Len())
}

func TestScheduler_StartupRunAndStop(t *testing.T) {
	sc := safe_close.NewSafeClose()
	s := NewScheduler(zaptest.NewLogger(t), sc)

	ok := &fakeTask{schedule: "@every 1h", startup: true}
	failing := &fakeTask{schedule: "@every 1h", startup: true, err: errors.New("disk full")}
	panicking := &fakeTask{schedule: "@every 1h", startup: true, panics: true}
	idle := &fakeTask{schedule: "@every 1h"}
	for _, task := range []*fakeTask{ok, failing, panicking, idle} {
		require.NoError(t, s.AddTask(task))
	}
	s.Start()

	assert.Eventually(t, func() bool {
		return ok.runs.Load() == 1 && failing.runs.Load() == 1 && panicking.runs.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), idle.runs.Load())

	sc.SendCloseSignal(nil)
	done := make(chan error, 1)
	go func() { done <- sc.WaitClosed() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_EveryDescriptorFires(t *testing.T) {
	sc := safe_close.NewSafeClose()
	s := NewScheduler(zaptest.NewLogger(t), sc)
	task := &fakeTask{schedule: "@every 1s"}
	require.NoError(t, s.AddTask(task))
	s.Start()
	defer func() {
		sc.SendCloseSignal(nil)
		_ = sc.WaitClosed()
	}()

	assert.Eventually(t, func() bool { return task.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
