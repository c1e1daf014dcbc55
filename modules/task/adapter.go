package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domain "github.com/example/task-tracker/domain/task"
	"github.com/go-monolith/mono"
	monoerrors "github.com/go-monolith/mono/pkg/errors"
	"github.com/go-monolith/mono/pkg/helper"
)

// taskAdapter wraps ServiceContainer for type-safe cross-module communication.
type taskAdapter struct {
	container mono.ServiceContainer
}

// NewTaskAdapter creates a TaskPort over the task module's ServiceContainer.
func NewTaskAdapter(container mono.ServiceContainer) TaskPort {
	if container == nil {
		panic("task adapter requires non-nil ServiceContainer")
	}
	return &taskAdapter{container: container}
}

func (a *taskAdapter) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	req := ListTasksRequest{UserID: ownerID}
	var resp ListTasksResponse
	if err := callService(ctx, a.container, "list-tasks", &req, &resp); err != nil {
		return nil, err
	}
	if resp.Tasks == nil {
		resp.Tasks = []domain.Task{}
	}
	return resp.Tasks, nil
}

func (a *taskAdapter) CreateTask(ctx context.Context, ownerID string, in domain.CreateInput) (*domain.Task, error) {
	req := CreateTaskRequest{UserID: ownerID, Input: in}
	var resp domain.Task
	if err := callService(ctx, a.container, "create-task", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *taskAdapter) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	req := GetTaskRequest{UserID: ownerID, TaskID: taskID}
	var resp domain.Task
	if err := callService(ctx, a.container, "get-task", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *taskAdapter) UpdateTask(ctx context.Context, ownerID, taskID string, patch json.RawMessage) (*domain.Task, error) {
	req := UpdateTaskRequest{UserID: ownerID, TaskID: taskID, Patch: patch}
	var resp domain.Task
	if err := callService(ctx, a.container, "update-task", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *taskAdapter) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	req := DeleteTaskRequest{UserID: ownerID, TaskID: taskID}
	var resp DeleteTaskResponse
	if err := callService(ctx, a.container, "delete-task", &req, &resp); err != nil {
		return err
	}
	if !resp.Deleted {
		return fmt.Errorf("task not deleted: %s", taskID)
	}
	return nil
}

func callService[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		if mapped := mapServiceError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("%s service call failed: %w", service, err)
	}
	return nil
}

// mapServiceError restores domain errors from their wire message, since
// error types do not survive the request-reply hop.
func mapServiceError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	// The remote message carries no transport prefix or error-type suffix.
	var remote *monoerrors.RemoteError
	if errors.As(err, &remote) {
		msg = remote.Message
	}

	prefix := domain.ErrValidation.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		field, reason, _ := strings.Cut(msg[i+len(prefix):], " ")
		return &domain.ValidationError{Field: field, Reason: reason}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, domain.ErrNotFound.Error()):
		return domain.ErrNotFound
	case strings.Contains(lower, domain.ErrNotOwner.Error()):
		return domain.ErrNotOwner
	case strings.Contains(lower, domain.ErrConflict.Error()):
		return domain.ErrConflict
	}

	return err
}
