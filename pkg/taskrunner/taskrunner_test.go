package taskrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, r *Runner, id interface{ String() string }, want TaskStatus) *Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.RLock()
		for tid, task := range r.tasks {
			if tid.String() == id.String() && task.Status == want {
				r.mu.RUnlock()
				return task
			}
		}
		r.mu.RUnlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("задача %s не достигла статуса %s", id.String(), want)
	return nil
}

func TestRunner_SubmitCompletes(t *testing.T) {
	r := New(Config{MaxTasks: 5})
	defer r.Close()

	var ran atomic.Bool
	id, err := r.Submit(context.Background(), "test-task", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)

	task := waitForStatus(t, r, id, TaskStatusCompleted)
	assert.True(t, ran.Load())
	assert.Equal(t, "test-task", task.Name)
}

func TestRunner_SubmitFailure(t *testing.T) {
	r := New(Config{MaxTasks: 5})
	defer r.Close()

	id, err := r.Submit(context.Background(), "failing-task", func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.NoError(t, err)

	task := waitForStatus(t, r, id, TaskStatusFailed)
	assert.Contains(t, task.Message, "boom")
}

func TestRunner_DetachedFromParentContext(t *testing.T) {
	r := New(Config{MaxTasks: 5})
	defer r.Close()

	parentCtx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	id, err := r.Submit(parentCtx, "detached", func(ctx context.Context) error {
		close(started)
		<-release
		// Отмена родительского контекста не должна дойти сюда.
		return ctx.Err()
	})
	require.NoError(t, err)

	<-started
	cancel()
	close(release)

	waitForStatus(t, r, id, TaskStatusCompleted)
}

func TestRunner_MaxTasksLimit(t *testing.T) {
	r := New(Config{MaxTasks: 1})
	defer r.Close()

	release := make(chan struct{})
	_, err := r.Submit(context.Background(), "long", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	_, err = r.Submit(context.Background(), "rejected", func(ctx context.Context) error { return nil })
	assert.Error(t, err)

	close(release)
}

func TestRunner_ShutdownWaitsForTasks(t *testing.T) {
	r := New(Config{MaxTasks: 5})

	var done atomic.Bool
	_, err := r.Submit(context.Background(), "slow", func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	assert.True(t, done.Load())

	// После Shutdown новые задачи не принимаются.
	_, err = r.Submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestRunner_CleanupTasks(t *testing.T) {
	r := New(Config{MaxTasks: 5})
	defer r.Close()

	id, err := r.Submit(context.Background(), "short", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	waitForStatus(t, r, id, TaskStatusCompleted)

	r.CleanupTasks(0)

	_, err = r.GetTask(id)
	assert.Error(t, err)
}

func TestRunner_JanitorEvictsTerminalTasks(t *testing.T) {
	// Завершенные задачи убираются сами, без внешнего вызова CleanupTasks:
	// долгоживущий процесс не должен накапливать записи о задачах.
	r := New(Config{MaxTasks: 5, CleanupInterval: 10 * time.Millisecond, CleanupAge: time.Nanosecond})
	defer r.Close()

	id, err := r.Submit(context.Background(), "short", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	waitForStatus(t, r, id, TaskStatusCompleted)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.GetTask(id); err != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("задача %s не была удалена уборщиком", id)
}
