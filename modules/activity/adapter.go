package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ListActivityRequest is the request for the list-activity service.
type ListActivityRequest struct {
	UserID string `json:"user_id"`
}

// ListActivityResponse is the response from the list-activity service.
type ListActivityResponse struct {
	Entries []Entry `json:"entries"`
}

// ActivityPort reads an owner's activity feed.
type ActivityPort interface {
	ListActivity(ctx context.Context, ownerID string) ([]Entry, error)
}

type activityAdapter struct {
	container mono.ServiceContainer
}

// NewActivityAdapter creates an ActivityPort over the activity module's container.
func NewActivityAdapter(container mono.ServiceContainer) ActivityPort {
	if container == nil {
		panic("activity adapter requires non-nil ServiceContainer")
	}
	return &activityAdapter{container: container}
}

func (a *activityAdapter) ListActivity(ctx context.Context, ownerID string) ([]Entry, error) {
	req := ListActivityRequest{UserID: ownerID}
	var resp ListActivityResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"list-activity",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("list-activity service call failed: %w", err)
	}
	if resp.Entries == nil {
		resp.Entries = []Entry{}
	}
	return resp.Entries, nil
}
