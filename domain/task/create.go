package task

import (
	"time"

	"github.com/google/uuid"
)

// CreateInput carries the caller-controlled fields of a new task.
// DueDate and Priority are raw strings; empty means "not given".
type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Priority    string `json:"priority"`
}

// NewTask validates in and builds an unsaved task owned by ownerID.
func NewTask(ownerID string, in CreateInput, now time.Time) (*Task, error) {
	title, err := NormalizeTitle(in.Title)
	if err != nil {
		return nil, err
	}
	priority, err := ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	due, err := ParseDueDate(in.DueDate)
	if err != nil {
		return nil, err
	}

	return &Task{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       title,
		Description: in.Description,
		DueDate:     due,
		Priority:    priority,
		Revision:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
