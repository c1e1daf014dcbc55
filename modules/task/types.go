package task

import (
	"context"
	"encoding/json"

	domain "github.com/example/task-tracker/domain/task"
)

// TaskPort defines the task operations exposed to other modules.
type TaskPort interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, ownerID string, in domain.CreateInput) (*domain.Task, error)
	GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, patch json.RawMessage) (*domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// ListTasksRequest is the request for the list-tasks service.
type ListTasksRequest struct {
	UserID string `json:"user_id"`
}

// ListTasksResponse is the response from the list-tasks service.
type ListTasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

// CreateTaskRequest is the request for the create-task service.
type CreateTaskRequest struct {
	UserID string             `json:"user_id"`
	Input  domain.CreateInput `json:"input"`
}

// GetTaskRequest is the request for the get-task service.
type GetTaskRequest struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
}

// UpdateTaskRequest is the request for the update-task service.
// Patch is forwarded verbatim so absent, null and empty fields stay distinct.
type UpdateTaskRequest struct {
	UserID string          `json:"user_id"`
	TaskID string          `json:"task_id"`
	Patch  json.RawMessage `json:"patch,omitempty"`
}

// DeleteTaskRequest is the request for the delete-task service.
type DeleteTaskRequest struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
}

// DeleteTaskResponse is the response from the delete-task service.
type DeleteTaskResponse struct {
	Deleted bool `json:"deleted"`
}
