// Package activity records a bounded per-owner feed of task events.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/task-tracker/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// DefaultFeedSize is the number of entries kept per owner.
const DefaultFeedSize = 50

// Entry kinds.
const (
	KindCreated   = "created"
	KindUpdated   = "updated"
	KindCompleted = "completed"
	KindReopened  = "reopened"
	KindDeleted   = "deleted"
)

// Entry is one line of an owner's activity feed.
type Entry struct {
	TaskID    string    `json:"task_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityModule consumes task events and keeps the latest entries per owner.
type ActivityModule struct {
	mu       sync.RWMutex
	feeds    map[string][]Entry
	feedSize int
	hub      *Hub
	logger   types.Logger
}

var _ mono.Module = (*ActivityModule)(nil)
var _ mono.EventConsumerModule = (*ActivityModule)(nil)
var _ mono.ServiceProviderModule = (*ActivityModule)(nil)

// NewModule creates an ActivityModule keeping feedSize entries per owner.
func NewModule(feedSize int, logger types.Logger) *ActivityModule {
	if feedSize <= 0 {
		feedSize = DefaultFeedSize
	}
	return &ActivityModule{
		feeds:    make(map[string][]Entry),
		feedSize: feedSize,
		hub:      NewHub(),
		logger:   logger,
	}
}

func (m *ActivityModule) Name() string {
	return "activity"
}

func (m *ActivityModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskCreatedV1, m.handleTaskCreated, m); err != nil {
		return fmt.Errorf("failed to register TaskCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskUpdatedV1, m.handleTaskUpdated, m); err != nil {
		return fmt.Errorf("failed to register TaskUpdated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskDeletedV1, m.handleTaskDeleted, m); err != nil {
		return fmt.Errorf("failed to register TaskDeleted consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "module", "activity", "events", "TaskCreated, TaskUpdated, TaskDeleted")
	return nil
}

func (m *ActivityModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "list-activity", json.Unmarshal, json.Marshal, m.listActivity,
	); err != nil {
		return fmt.Errorf("failed to register list-activity service: %w", err)
	}
	return nil
}

func (m *ActivityModule) handleTaskCreated(_ context.Context, event events.TaskCreatedEvent, _ *mono.Msg) error {
	m.record(event.UserID, Entry{
		TaskID:    event.TaskID,
		Kind:      KindCreated,
		Message:   fmt.Sprintf("Created %q (%s priority)", event.Title, event.Priority),
		Timestamp: event.CreatedAt,
	})
	return nil
}

func (m *ActivityModule) handleTaskUpdated(_ context.Context, event events.TaskUpdatedEvent, _ *mono.Msg) error {
	entry := Entry{
		TaskID:    event.TaskID,
		Kind:      KindUpdated,
		Message:   fmt.Sprintf("Updated task to revision %d", event.Revision),
		Timestamp: event.UpdatedAt,
	}
	if event.Toggled {
		if event.Completed {
			entry.Kind, entry.Message = KindCompleted, "Marked task complete"
		} else {
			entry.Kind, entry.Message = KindReopened, "Reopened task"
		}
	}
	m.record(event.UserID, entry)
	return nil
}

func (m *ActivityModule) handleTaskDeleted(_ context.Context, event events.TaskDeletedEvent, _ *mono.Msg) error {
	m.record(event.UserID, Entry{
		TaskID:    event.TaskID,
		Kind:      KindDeleted,
		Message:   "Deleted task",
		Timestamp: event.DeletedAt,
	})
	return nil
}

func (m *ActivityModule) listActivity(_ context.Context, req ListActivityRequest, _ *mono.Msg) (ListActivityResponse, error) {
	return ListActivityResponse{Entries: m.Feed(req.UserID)}, nil
}

// record prepends entry to the owner's feed, dropping the oldest beyond
// feedSize, and pushes it to live subscribers.
func (m *ActivityModule) record(ownerID string, entry Entry) {
	if ownerID == "" {
		return
	}
	m.mu.Lock()
	feed := append([]Entry{entry}, m.feeds[ownerID]...)
	if len(feed) > m.feedSize {
		feed = feed[:m.feedSize]
	}
	m.feeds[ownerID] = feed
	m.mu.Unlock()

	if dropped := m.hub.Publish(ownerID, entry); dropped > 0 {
		m.logger.Warn("Slow activity subscribers missed an entry", "owner", ownerID, "dropped", dropped)
	}
	m.logger.Debug("Recorded activity", "owner", ownerID, "task_id", entry.TaskID, "kind", entry.Kind)
}

// Subscribe streams the owner's new entries. Call the returned function to stop.
func (m *ActivityModule) Subscribe(ownerID string) (<-chan Entry, func()) {
	return m.hub.Subscribe(ownerID)
}

// Feed returns a copy of the owner's entries, newest first.
func (m *ActivityModule) Feed(ownerID string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Entry, len(m.feeds[ownerID]))
	copy(result, m.feeds[ownerID])
	return result
}

func (m *ActivityModule) Start(_ context.Context) error {
	m.logger.Info("Activity module started", "feed_size", m.feedSize)
	return nil
}

func (m *ActivityModule) Stop(_ context.Context) error {
	m.logger.Info("Activity module stopped")
	return nil
}
