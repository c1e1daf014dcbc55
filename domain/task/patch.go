package task

import (
	"bytes"
	"encoding/json"
	"time"
)

// DueDateChange says what an update does to the due date.
type DueDateChange int

const (
	// DueDateKeep leaves the stored due date untouched (field omitted or null).
	DueDateKeep DueDateChange = iota
	// DueDateClear removes the due date (field sent as "").
	DueDateClear
	// DueDateSet replaces the due date.
	DueDateSet
)

// Patch is a parsed partial update. Nil pointers mean "not supplied".
type Patch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Completed   *bool
	DueDate     DueDateChange
	DueDateTo   time.Time
	// Revision, when set, must equal the stored revision for the update to apply.
	Revision *int64
}

// ParsePatch decodes a JSON object into a Patch.
//
// A field that is absent or null is left unchanged. "completed" only counts
// when it is a JSON boolean; any other value is ignored. "dueDate" set to ""
// clears the date. Other fields must carry the right JSON type and a valid
// value or the whole patch is rejected.
func ParsePatch(data []byte) (Patch, error) {
	var p Patch

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return p, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return p, &ValidationError{Field: "body", Reason: "must be a JSON object"}
	}

	if v, ok := field(raw, "title"); ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return p, &ValidationError{Field: "title", Reason: "must be a string"}
		}
		title, err := NormalizeTitle(s)
		if err != nil {
			return p, err
		}
		p.Title = &title
	}

	if v, ok := field(raw, "description"); ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return p, &ValidationError{Field: "description", Reason: "must be a string"}
		}
		p.Description = &s
	}

	if v, ok := field(raw, "priority"); ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return p, &ValidationError{Field: "priority", Reason: "must be a string"}
		}
		prio := Priority(s)
		if !prio.Valid() {
			return p, &ValidationError{Field: "priority", Reason: "must be one of Low, Medium, High"}
		}
		p.Priority = &prio
	}

	if v, ok := field(raw, "completed"); ok {
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			p.Completed = &b
		}
	}

	if v, ok := field(raw, "dueDate"); ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return p, &ValidationError{Field: "dueDate", Reason: "must be a string"}
		}
		due, err := ParseDueDate(s)
		if err != nil {
			return p, err
		}
		if due == nil {
			p.DueDate = DueDateClear
		} else {
			p.DueDate = DueDateSet
			p.DueDateTo = *due
		}
	}

	if v, ok := field(raw, "revision"); ok {
		var rev int64
		if err := json.Unmarshal(v, &rev); err != nil {
			return p, &ValidationError{Field: "revision", Reason: "must be an integer"}
		}
		p.Revision = &rev
	}

	return p, nil
}

// field returns the raw value for key unless it is missing or JSON null.
func field(raw map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := raw[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

// Apply writes the supplied fields onto t. It does not touch Revision or timestamps.
func (p Patch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	switch p.DueDate {
	case DueDateClear:
		t.DueDate = nil
	case DueDateSet:
		due := p.DueDateTo
		t.DueDate = &due
	}
}

// TogglesCompletion reports whether applying p to t flips its completed flag.
func (p Patch) TogglesCompletion(t *Task) bool {
	return p.Completed != nil && *p.Completed != t.Completed
}
