package task

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/task-tracker/domain/task"
	"gorm.io/gorm"
)

// TaskRepository provides access to task storage.
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create saves a new task.
func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// FindByID retrieves a task by its ID.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return &task, nil
}

// ListByOwner returns every task owned by ownerID, newest first.
func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Task, error) {
	tasks := make([]domain.Task, 0)
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// ApplyPatch writes the fields present in patch from task and bumps the
// revision. When expectedRevision is set the write only succeeds if the
// stored revision still matches.
func (r *TaskRepository) ApplyPatch(ctx context.Context, task *domain.Task, patch domain.Patch, expectedRevision *int64) error {
	columns := patchColumns(task, patch)
	columns["revision"] = gorm.Expr("revision + 1")
	columns["updated_at"] = task.UpdatedAt

	query := r.db.WithContext(ctx).Model(&domain.Task{}).Where("id = ?", task.ID)
	if expectedRevision != nil {
		query = query.Where("revision = ?", *expectedRevision)
	}

	result := query.Updates(columns)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.RowsAffected == 0 {
		if expectedRevision != nil {
			return domain.ErrConflict
		}
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a task by ID.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.Task{}, "id = ?", id)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// patchColumns maps the fields supplied in patch to their column values on task.
func patchColumns(task *domain.Task, patch domain.Patch) map[string]any {
	columns := make(map[string]any)
	if patch.Title != nil {
		columns["title"] = task.Title
	}
	if patch.Description != nil {
		columns["description"] = task.Description
	}
	if patch.Priority != nil {
		columns["priority"] = task.Priority
	}
	if patch.Completed != nil {
		columns["completed"] = task.Completed
	}
	if patch.DueDate != domain.DueDateKeep {
		columns["due_date"] = task.DueDate
	}
	return columns
}
