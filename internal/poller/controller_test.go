package poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unicodeveloper/supplement-research/internal/models"
	"github.com/unicodeveloper/supplement-research/internal/research"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient scripts status responses and records cancel notifications.
type fakeClient struct {
	mu        sync.Mutex
	statusFn  func(taskID string) (*models.ResearchTask, error)
	cancelled []string
	inFlight  chan struct{} // closed-over gate; nil means respond immediately
	release   chan struct{}
}

func (f *fakeClient) GetStatus(ctx context.Context, taskID string) (*models.ResearchTask, error) {
	if f.inFlight != nil {
		f.inFlight <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	fn := f.statusFn
	f.mu.Unlock()
	return fn(taskID)
}

func (f *fakeClient) CancelTask(ctx context.Context, taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, taskID)
}

func (f *fakeClient) setStatus(fn func(taskID string) (*models.ResearchTask, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFn = fn
}

func running(step, total int) *models.ResearchTask {
	return &models.ResearchTask{
		ID:       "abc123",
		Status:   models.StatusRunning,
		Progress: &models.Progress{CurrentStep: step, TotalSteps: total},
	}
}

func completed() *models.ResearchTask {
	return &models.ResearchTask{
		ID:     "abc123",
		Status: models.StatusCompleted,
		Output: "# Report",
		Deliverables: []models.Deliverable{
			{Type: models.DeliverableCSV, URL: "https://files.example.dev/abc123.csv"},
		},
	}
}

// waitFor polls the snapshot until cond holds or the deadline passes.
func waitFor(t *testing.T, c *Controller, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := c.Snapshot()
		if cond(s) {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached; snapshot: %+v", c.Snapshot())
	return Snapshot{}
}

// drive pushes one scripted response through the controller's check path,
// bypassing the timer for determinism.
func drive(c *Controller) {
	c.mu.Lock()
	gen := c.gen
	taskID := c.taskID
	c.mu.Unlock()
	c.checkOnce(context.Background(), taskID, gen)
}

func newIdleController(fc *fakeClient, onAuth func() error) *Controller {
	// An hour-long interval keeps the ticker quiet; tests drive checks by hand.
	return NewController(fc, time.Hour, onAuth, testLogger())
}

func TestStartFiresImmediateCheck(t *testing.T) {
	fc := &fakeClient{}
	fc.setStatus(func(string) (*models.ResearchTask, error) { return running(1, 5), nil })

	c := newIdleController(fc, nil)
	require.NoError(t, c.Start("abc123"))
	defer c.Reset()

	s := waitFor(t, c, func(s Snapshot) bool { return s.Task != nil && s.Task.Status == models.StatusRunning })
	require.Equal(t, StatePolling, s.State)
	require.Equal(t, 20, s.Task.Progress.Percent())
}

func TestStartRejectedWhilePolling(t *testing.T) {
	fc := &fakeClient{}
	fc.setStatus(func(string) (*models.ResearchTask, error) { return running(1, 5), nil })

	c := newIdleController(fc, nil)
	require.NoError(t, c.Start("abc123"))
	defer c.Reset()

	require.Error(t, c.Start("other"))
}

func TestRecurringPollReachesCompleted(t *testing.T) {
	fc := &fakeClient{}
	var calls int
	var mu sync.Mutex
	fc.setStatus(func(string) (*models.ResearchTask, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return running(calls, 5), nil
		}
		return completed(), nil
	})

	c := NewController(fc, 5*time.Millisecond, nil, testLogger())
	require.NoError(t, c.Start("abc123"))

	s := waitFor(t, c, func(s Snapshot) bool { return s.State == StateCompleted })
	require.Equal(t, "# Report", s.Task.Output)
	require.Len(t, s.Task.Deliverables, 1)

	// The ticker is torn down; the goroutine exits.
	done := make(chan struct{})
	go func() { c.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("polling goroutine still running after terminal status")
	}
}

func TestTerminalSnapshotIsSticky(t *testing.T) {
	fc := &fakeClient{}
	fc.setStatus(func(string) (*models.ResearchTask, error) { return completed(), nil })

	c := newIdleController(fc, nil)
	require.NoError(t, c.Start("abc123"))
	waitFor(t, c, func(s Snapshot) bool { return s.State == StateCompleted })

	// Simulated late responses must not change the exposed snapshot.
	fc.setStatus(func(string) (*models.ResearchTask, error) { return running(9, 10), nil })
	drive(c)
	fc.setStatus(func(string) (*models.ResearchTask, error) {
		return &models.ResearchTask{ID: "abc123", Status: models.StatusFailed, Error: "late failure"}, nil
	})
	drive(c)

	s := c.Snapshot()
	require.Equal(t, StateCompleted, s.State)
	require.Equal(t, models.StatusCompleted, s.Task.Status)
	require.Equal(t, "# Report", s.Task.Output)
}

func TestServerReportedFailureStopsPolling(t *testing.T) {
	fc := &fakeClient{}
	fc.setStatus(func(string) (*models.ResearchTask, error) {
		return &models.ResearchTask{ID: "abc123", Status: models.StatusFailed, Error: "the model gave up"}, nil
	})

	c := newIdleController(fc, nil)
	require.NoError(t, c.Start("abc123"))

	s := waitFor(t, c, func(s Snapshot) bool { return s.State == StateFailed })
	require.Equal(t, "the model gave up", s.Task.Error)
}

func TestServerReportedCancelledIsDistinctTerminal(t *testing.T) {
	fc := &fakeClient{}
	fc.setStatus(func(string) (*models.ResearchTask, error) {
		return &models.ResearchTask{ID: "abc123", Status: models.StatusCancelled}, nil
	})

	c := newIdleController(fc, nil)
	require.NoError(t, c.Start("abc123"))

	s := waitFor(t, c, func(s Snapshot) bool { return s.State == StateCancelled })
	require.Equal(t, models.StatusCancelled, s.Task.Status)
}

func TestCancelDiscardsInFlightResponse(t *testing.T) {
	fc := &fakeClient{
		inFlight: make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	fc.setStatus(func(string) (*models.ResearchTask, error) { return running(4, 5), nil })

	c := newIdleController(fc, nil)
	require.NoError(t, c.Start("abc123"))

	// The immediate check is now on the wire.
	<-fc.inFlight

	c.Cancel(context.Background())

	// The stale response arrives after the cancel was requested.
	close(fc.release)
	c.Wait()

	s := c.Snapshot()
	require.Equal(t, StateIdle, s.State, "stale response must not revert the controller to polling")
	require.Nil(t, s.Task)
	require.Empty(t, s.TaskID)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Equal(t, []string{"abc123"}, fc.cancelled, "upstream must still be notified")
}

func TestCancelOutsidePollingIsNoOp(t *testing.T) {
	fc := &fakeClient{}
	c := newIdleController(fc, nil)

	c.Cancel(context.Background())

	require.Equal(t, StateIdle, c.Snapshot().State)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Empty(t, fc.cancelled)
}

func TestResetClearsEverythingAndIsIdempotent(t *testing.T) {
	fc := &fakeClient{}
	fc.setStatus(func(string) (*models.ResearchTask, error) { return completed(), nil })

	c := newIdleController(fc, nil)
	require.NoError(t, c.Start("abc123"))
	waitFor(t, c, func(s Snapshot) bool { return s.State == StateCompleted })

	c.Reset()
	c.Reset()

	s := c.Snapshot()
	require.Equal(t, StateIdle, s.State)
	require.Nil(t, s.Task)
	require.Empty(t, s.TaskID)

	// The controller is reusable after a reset.
	fc.setStatus(func(string) (*models.ResearchTask, error) { return running(1, 5), nil })
	require.NoError(t, c.Start("def456"))
	defer c.Reset()
	waitFor(t, c, func(s Snapshot) bool { return s.Task != nil && s.Task.Status == models.StatusRunning })
}

func TestStaleResponseFromPreviousSessionDiscarded(t *testing.T) {
	fc := &fakeClient{}
	fc.setStatus(func(string) (*models.ResearchTask, error) { return running(1, 5), nil })

	c := newIdleController(fc, nil)
	require.NoError(t, c.Start("abc123"))
	waitFor(t, c, func(s Snapshot) bool { return s.Task != nil && s.Task.Status == models.StatusRunning })

	c.mu.Lock()
	oldGen := c.gen
	c.mu.Unlock()

	c.Reset()
	require.NoError(t, c.Start("def456"))
	defer c.Reset()
	waitFor(t, c, func(s Snapshot) bool { return s.TaskID == "def456" && s.Task != nil })

	// A response from the abandoned session must not touch the new one.
	fc.setStatus(func(string) (*models.ResearchTask, error) {
		return &models.ResearchTask{ID: "abc123", Status: models.StatusFailed}, nil
	})
	c.checkOnce(context.Background(), "abc123", oldGen)

	s := c.Snapshot()
	require.Equal(t, StatePolling, s.State)
	require.Equal(t, "def456", s.TaskID)
	require.NotEqual(t, models.StatusFailed, s.Task.Status)
}

func TestTransientFailureKeepsPolling(t *testing.T) {
	fc := &fakeClient{}
	fc.setStatus(func(string) (*models.ResearchTask, error) { return running(2, 5), nil })

	c := newIdleController(fc, nil)
	require.NoError(t, c.Start("abc123"))
	defer c.Reset()
	waitFor(t, c, func(s Snapshot) bool { return s.Task != nil && s.Task.Status == models.StatusRunning })

	fc.setStatus(func(string) (*models.ResearchTask, error) {
		return nil, &research.StatusError{Message: "connection reset"}
	})
	drive(c)

	s := c.Snapshot()
	require.Equal(t, StatePolling, s.State, "one failed check must not abort polling")
	require.Equal(t, models.StatusRunning, s.Task.Status, "snapshot keeps the last good state")

	fc.setStatus(func(string) (*models.ResearchTask, error) { return completed(), nil })
	drive(c)
	require.Equal(t, StateCompleted, c.Snapshot().State)
}

func TestAuthRequiredClearsCredentialsAndStopsTimer(t *testing.T) {
	fc := &fakeClient{}
	fc.setStatus(func(string) (*models.ResearchTask, error) { return nil, research.ErrAuthRequired })

	var clearCalls int
	c := newIdleController(fc, func() error {
		clearCalls++
		return nil
	})
	require.NoError(t, c.Start("abc123"))

	s := waitFor(t, c, func(s Snapshot) bool { return s.NeedsSignIn })
	require.Equal(t, 1, clearCalls)
	// The task status itself does not advance.
	require.Equal(t, models.StatusQueued, s.Task.Status)

	done := make(chan struct{})
	go func() { c.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("polling goroutine still running after auth failure")
	}
}
