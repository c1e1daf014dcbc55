package dashboard

import (
	"fmt"
	"strings"

	"github.com/example/task-tracker/domain/task"
)

// Filter is a local projection over the task list.
type Filter string

const (
	FilterAll       Filter = "All"
	FilterActive    Filter = "Active"
	FilterCompleted Filter = "Completed"
	FilterHigh      Filter = "High"
)

// Filters lists every filter in display order.
var Filters = []Filter{FilterAll, FilterActive, FilterCompleted, FilterHigh}

// ParseFilter matches s case-insensitively against Filters.
func ParseFilter(s string) (Filter, error) {
	for _, f := range Filters {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Match reports whether t belongs in the projection.
func (f Filter) Match(t task.Task) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	case FilterHigh:
		return t.Priority == task.PriorityHigh
	default:
		return true
	}
}
