package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/unicodeveloper/supplement-research/internal/archive"
	"github.com/unicodeveloper/supplement-research/internal/auth"
	"github.com/unicodeveloper/supplement-research/internal/models"
	"github.com/unicodeveloper/supplement-research/internal/poller"
	"github.com/unicodeveloper/supplement-research/internal/research"
)

// TaskClient is what the service needs from the research API client.
type TaskClient interface {
	CreateTask(ctx context.Context, req models.ResearchRequest) (string, error)
	GetStatus(ctx context.Context, taskID string) (*models.ResearchTask, error)
	CancelTask(ctx context.Context, taskID string)
}

// Service orchestrates research tasks: it creates them upstream, hands each
// one to its own polling controller, and answers status/cancel/archive
// requests from the handlers.
type Service struct {
	client   TaskClient
	tokens   *auth.TokenStore
	archiver *archive.Builder
	hosted   bool
	interval time.Duration
	log      *slog.Logger

	mu          sync.Mutex
	controllers map[string]*poller.Controller
}

func NewService(client TaskClient, tokens *auth.TokenStore, archiver *archive.Builder, hosted bool, interval time.Duration, log *slog.Logger) *Service {
	return &Service{
		client:      client,
		tokens:      tokens,
		archiver:    archiver,
		hosted:      hosted,
		interval:    interval,
		log:         log,
		controllers: make(map[string]*poller.Controller),
	}
}

// CreateResearch submits the brief upstream and starts polling the new task.
func (s *Service) CreateResearch(ctx context.Context, req models.ResearchRequest) (*models.CreateResponse, error) {
	if req.SupplementName == "" {
		return nil, errors.New("supplementName is required")
	}
	if s.hosted && !s.tokens.SignedIn() {
		return nil, research.ErrAuthRequired
	}

	taskID, err := s.client.CreateTask(ctx, req)
	if err != nil {
		// A rejected credential destroys the session here too, not just on
		// the poll and status paths.
		if errors.Is(err, research.ErrAuthRequired) {
			if cerr := s.tokens.Clear(); cerr != nil {
				s.log.Error("failed to clear stored credentials", slog.String("error", cerr.Error()))
			}
		}
		return nil, err
	}

	ctrl := poller.NewController(s.client, s.interval, s.tokens.Clear, s.log)
	if err := ctrl.Start(taskID); err != nil {
		return nil, fmt.Errorf("starting poll for task %s: %w", taskID, err)
	}

	s.mu.Lock()
	s.controllers[taskID] = ctrl
	s.mu.Unlock()

	s.log.Info("research task created",
		slog.String("taskID", taskID),
		slog.String("supplement", req.SupplementName))

	return &models.CreateResponse{
		Success:        true,
		DeepResearchID: taskID,
		Status:         models.StatusQueued,
	}, nil
}

// Status returns the controller's snapshot for a known task, or proxies a
// direct upstream check for ids created outside this process.
func (s *Service) Status(ctx context.Context, taskID string) (*models.ResearchTask, bool, error) {
	s.mu.Lock()
	ctrl, ok := s.controllers[taskID]
	s.mu.Unlock()

	if ok {
		snap := ctrl.Snapshot()
		if snap.NeedsSignIn {
			return snap.Task, true, nil
		}
		if snap.Task != nil {
			return snap.Task, false, nil
		}
	}

	task, err := s.client.GetStatus(ctx, taskID)
	if errors.Is(err, research.ErrAuthRequired) {
		if cerr := s.tokens.Clear(); cerr != nil {
			s.log.Error("failed to clear stored credentials", slog.String("error", cerr.Error()))
		}
		return nil, true, err
	}
	if err != nil {
		return nil, false, err
	}
	return task, false, nil
}

// Cancel stops polling and notifies upstream, best-effort. Unknown ids still
// get the upstream notification.
func (s *Service) Cancel(ctx context.Context, taskID string) {
	s.mu.Lock()
	ctrl, ok := s.controllers[taskID]
	if ok {
		delete(s.controllers, taskID)
	}
	s.mu.Unlock()

	if ok {
		ctrl.Cancel(ctx)
		return
	}
	s.client.CancelTask(ctx, taskID)
}

// Archive bundles a completed task's deliverables into a zip and returns its
// public path.
func (s *Service) Archive(ctx context.Context, taskID string) (string, []string, error) {
	task, _, err := s.Status(ctx, taskID)
	if err != nil {
		return "", nil, err
	}
	if task == nil || task.Status != models.StatusCompleted {
		return "", nil, fmt.Errorf("task %s is not completed", taskID)
	}
	if len(task.Deliverables) == 0 {
		return "", nil, fmt.Errorf("task %s has no deliverables", taskID)
	}

	if _, failures, err := s.archiver.Build(ctx, taskID, task.Deliverables); err != nil {
		return "", failures, err
	} else if len(failures) > 0 {
		s.log.Warn("some deliverables failed to download",
			slog.String("taskID", taskID),
			slog.Any("failures", failures))
		return "/archives/" + taskID + ".zip", failures, nil
	}

	return "/archives/" + taskID + ".zip", nil, nil
}

// Shutdown stops every live controller and waits for their goroutines.
func (s *Service) Shutdown() {
	s.mu.Lock()
	ctrls := make([]*poller.Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		ctrls = append(ctrls, c)
	}
	s.controllers = make(map[string]*poller.Controller)
	s.mu.Unlock()

	for _, c := range ctrls {
		c.Stop()
	}
	for _, c := range ctrls {
		c.Wait()
	}
}
