// Package poller owns the lifecycle of one in-flight research task: an
// immediate status check on start, a fixed-interval recurring check, and
// teardown on terminal status, cancellation, reset or shutdown.
//
// Cancellation is cooperative. A status request already on the wire cannot be
// aborted, only its response discarded, so the cancel flag is checked both
// before each request is sent and again before each response is applied.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/unicodeveloper/supplement-research/internal/models"
	"github.com/unicodeveloper/supplement-research/internal/research"
)

type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	// StateCancelled is the server-reported terminal variant. A locally
	// requested Cancel returns the controller straight to StateIdle instead.
	StateCancelled State = "cancelled"
)

// TaskClient is the slice of the research client the controller needs.
type TaskClient interface {
	GetStatus(ctx context.Context, taskID string) (*models.ResearchTask, error)
	CancelTask(ctx context.Context, taskID string)
}

// Snapshot is the observable controller state handed to the presentation
// layer. Task is a copy; mutating it does not touch the controller.
type Snapshot struct {
	State       State
	TaskID      string
	Task        *models.ResearchTask
	NeedsSignIn bool
}

// Controller polls one task at a time. All mutable fields are guarded by mu;
// the polling goroutine is the only writer of the task snapshot.
type Controller struct {
	client         TaskClient
	interval       time.Duration
	onAuthRequired func() error
	log            *slog.Logger

	mu          sync.Mutex
	state       State
	taskID      string
	task        *models.ResearchTask
	cancelled   bool
	needsSignIn bool
	gen         uint64
	stopPoll    context.CancelFunc
	wg          sync.WaitGroup
}

// NewController builds an idle controller. onAuthRequired runs once when a
// poll reports a credential failure; it is where the token store gets
// cleared. It may be nil.
func NewController(client TaskClient, interval time.Duration, onAuthRequired func() error, log *slog.Logger) *Controller {
	return &Controller{
		client:         client,
		interval:       interval,
		onAuthRequired: onAuthRequired,
		log:            log,
		state:          StateIdle,
	}
}

// Start begins polling a freshly created task: one immediate status check,
// then one every interval. Only valid from StateIdle.
func (c *Controller) Start(taskID string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return errors.New("poller: controller is not idle")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.state = StatePolling
	c.taskID = taskID
	c.task = &models.ResearchTask{ID: taskID, Status: models.StatusQueued}
	c.cancelled = false
	c.needsSignIn = false
	c.gen++
	c.stopPoll = cancel
	gen := c.gen
	c.mu.Unlock()

	c.wg.Add(1)
	go c.loop(ctx, taskID, gen)

	return nil
}

func (c *Controller) loop(ctx context.Context, taskID string, gen uint64) {
	defer c.wg.Done()

	c.checkOnce(ctx, taskID, gen)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkOnce(ctx, taskID, gen)
		}
	}
}

// checkOnce performs a single status check. The cancel flag and generation
// are verified before the request goes out and again before the response is
// applied; a response that raced a cancel or a reset is discarded.
func (c *Controller) checkOnce(ctx context.Context, taskID string, gen uint64) {
	c.mu.Lock()
	if c.cancelled || c.gen != gen || c.state != StatePolling {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	task, err := c.client.GetStatus(ctx, taskID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled || c.gen != gen || c.state != StatePolling {
		return
	}

	if err != nil {
		if errors.Is(err, research.ErrAuthRequired) {
			c.handleAuthRequiredLocked(taskID)
			return
		}
		// Transient failure: keep the last snapshot, poll again next tick.
		c.log.Debug("status check failed, will retry",
			slog.String("taskID", taskID),
			slog.String("error", err.Error()))
		return
	}

	// Terminal is sticky for the rest of the session.
	if c.task != nil && c.task.Status.Terminal() {
		return
	}

	c.task = task

	if task.Status.Terminal() {
		c.stopLocked()
		switch task.Status {
		case models.StatusCompleted:
			c.state = StateCompleted
		case models.StatusCancelled:
			c.state = StateCancelled
		default:
			c.state = StateFailed
		}
		c.log.Info("task reached terminal status",
			slog.String("taskID", taskID),
			slog.String("status", string(task.Status)))
	}
}

func (c *Controller) handleAuthRequiredLocked(taskID string) {
	c.stopLocked()
	c.needsSignIn = true
	c.log.Warn("credential rejected during poll, sign-in required", slog.String("taskID", taskID))
	if c.onAuthRequired != nil {
		if err := c.onAuthRequired(); err != nil {
			c.log.Error("failed to clear stored credentials", slog.String("error", err.Error()))
		}
	}
}

// Cancel tears the polling session down. The cancel flag is set synchronously
// before the upstream notification, so any in-flight poll response is
// discarded rather than applied. Upstream notification is best-effort; the
// controller lands in StateIdle no matter what the server says.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	if c.state != StatePolling {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	taskID := c.taskID
	c.stopLocked()
	c.mu.Unlock()

	c.client.CancelTask(ctx, taskID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.task = nil
	c.taskID = ""
	c.log.Info("task cancelled locally", slog.String("taskID", taskID))
}

// Reset returns the controller to StateIdle from any state, clearing the
// snapshot and the task id. Idempotent; safe to call on an already-stopped
// controller.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.state = StateIdle
	c.task = nil
	c.taskID = ""
	c.cancelled = false
	c.needsSignIn = false
}

// Stop halts polling without touching the snapshot. Used at shutdown.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

// Wait blocks until the polling goroutine has fully exited. Stop/Cancel/Reset
// request termination; Wait provides the cancel-and-await-completion
// semantics for callers that need it.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// stopLocked clears the recurring timer. Idempotent; callers hold mu.
func (c *Controller) stopLocked() {
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
}

// Snapshot returns a copy of the observable state under the lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:       c.state,
		TaskID:      c.taskID,
		NeedsSignIn: c.needsSignIn,
	}
	if c.task != nil {
		task := *c.task
		s.Task = &task
	}
	return s
}
