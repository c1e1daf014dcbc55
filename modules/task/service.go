package task

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// ListCache caches each owner's task list. Invalidate advances the owner's
// generation and must treat an absent entry as success. SetList stores the
// list only if gen is still the owner's current generation.
type ListCache interface {
	GetList(ctx context.Context, ownerID string) ([]domain.Task, bool, error)
	Generation(ctx context.Context, ownerID string) (int64, error)
	SetList(ctx context.Context, ownerID string, gen int64, tasks []domain.Task) (bool, error)
	Invalidate(ctx context.Context, ownerID string) error
}

// TaskService implements task CRUD with ownership checks.
type TaskService struct {
	repo     *TaskRepository
	cache    ListCache
	eventBus mono.EventBus
	logger   types.Logger
	clock    *clock
}

// NewTaskService creates a TaskService. cache may be nil.
func NewTaskService(repo *TaskRepository, cache ListCache, logger types.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		cache:  cache,
		logger: logger,
		clock:  newClock(time.Now),
	}
}

// SetEventBus enables event publishing after successful writes.
func (s *TaskService) SetEventBus(bus mono.EventBus) {
	s.eventBus = bus
}

// List returns the owner's tasks, newest first.
func (s *TaskService) List(ctx context.Context, ownerID string) ([]domain.Task, error) {
	var (
		gen       int64
		fillCache bool
	)
	if s.cache != nil {
		tasks, found, err := s.cache.GetList(ctx, ownerID)
		if err != nil {
			s.logger.Warn("Task list cache read failed", "owner", ownerID, "error", err)
		} else if found {
			return tasks, nil
		}

		// The generation is read before the database so a write that
		// lands in between makes the fill below a no-op.
		if gen, err = s.cache.Generation(ctx, ownerID); err != nil {
			s.logger.Warn("Task list cache generation read failed", "owner", ownerID, "error", err)
		} else {
			fillCache = true
		}
	}

	tasks, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if fillCache {
		if _, err := s.cache.SetList(ctx, ownerID, gen, tasks); err != nil {
			s.logger.Warn("Task list cache write failed", "owner", ownerID, "error", err)
		}
	}
	return tasks, nil
}

// Create validates in and stores a new task owned by ownerID.
func (s *TaskService) Create(ctx context.Context, ownerID string, in domain.CreateInput) (*domain.Task, error) {
	task, err := domain.NewTask(ownerID, in, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)

	s.publish(func(bus mono.EventBus) error {
		return events.TaskCreatedV1.Publish(bus, events.TaskCreatedEvent{
			TaskID:    task.ID,
			UserID:    task.OwnerID,
			Title:     task.Title,
			Priority:  string(task.Priority),
			CreatedAt: task.CreatedAt,
		}, nil)
	}, "TaskCreated", task.ID)

	return task, nil
}

// Get returns a single task if ownerID owns it.
func (s *TaskService) Get(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	return s.loadOwned(ctx, ownerID, taskID)
}

// Update applies the JSON patch to the task. Only fields present in the
// patch change; a "revision" in the patch makes the write conditional.
func (s *TaskService) Update(ctx context.Context, ownerID, taskID string, patchJSON []byte) (*domain.Task, error) {
	task, err := s.loadOwned(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	patch, err := domain.ParsePatch(patchJSON)
	if err != nil {
		return nil, err
	}
	if patch.Revision != nil && *patch.Revision != task.Revision {
		return nil, domain.ErrConflict
	}

	toggled := patch.TogglesCompletion(task)
	patch.Apply(task)
	task.UpdatedAt = s.clock.Now()

	if err := s.repo.ApplyPatch(ctx, task, patch, patch.Revision); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)

	updated, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	s.publish(func(bus mono.EventBus) error {
		return events.TaskUpdatedV1.Publish(bus, events.TaskUpdatedEvent{
			TaskID:    updated.ID,
			UserID:    updated.OwnerID,
			Revision:  updated.Revision,
			Completed: updated.Completed,
			Toggled:   toggled,
			UpdatedAt: updated.UpdatedAt,
		}, nil)
	}, "TaskUpdated", updated.ID)

	return updated, nil
}

// Delete removes the task if ownerID owns it.
func (s *TaskService) Delete(ctx context.Context, ownerID, taskID string) error {
	if _, err := s.loadOwned(ctx, ownerID, taskID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, taskID); err != nil {
		return err
	}
	s.invalidate(ctx, ownerID)

	s.publish(func(bus mono.EventBus) error {
		return events.TaskDeletedV1.Publish(bus, events.TaskDeletedEvent{
			TaskID:    taskID,
			UserID:    ownerID,
			DeletedAt: s.clock.Now(),
		}, nil)
	}, "TaskDeleted", taskID)

	return nil
}

// loadOwned checks existence before ownership so a missing task is always
// reported as not found.
func (s *TaskService) loadOwned(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.OwnedBy(ownerID) {
		return nil, domain.ErrNotOwner
	}
	return task, nil
}

func (s *TaskService) invalidate(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, ownerID); err != nil {
		s.logger.Warn("Task list cache invalidation failed", "owner", ownerID, "error", err)
	}
}

// publish is best-effort; failures are logged and never fail the write.
func (s *TaskService) publish(fn func(bus mono.EventBus) error, event, taskID string) {
	if s.eventBus == nil {
		return
	}
	if err := fn(s.eventBus); err != nil {
		s.logger.Warn("Failed to publish event", "event", event, "task_id", taskID, "error", err)
	}
}

// IsClientError reports whether err is caused by the request rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrNotOwner) ||
		errors.Is(err, domain.ErrConflict)
}

// clock hands out strictly increasing timestamps at microsecond precision
// so creation order survives storage in either database.
type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newClock(now func() time.Time) *clock {
	return &clock{now: now}
}

// Now returns a UTC timestamp later than any previously returned.
func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
