package taskclient

import (
	"github.com/example/task-tracker/domain/user"
)

// RegisterRequest is the body of a registration call.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	Token string       `json:"token"`
	User  user.Profile `json:"user"`
}

// CreateRequest is the body of a create call. Empty fields take the server defaults.
type CreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// MessageResponse carries a confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}

// Patch is a partial update. Nil fields are left out of the request and so
// keep their stored value.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	DueDate     *string `json:"dueDate,omitempty"`
	Revision    *int64  `json:"revision,omitempty"`
}

// ClearDueDate marks the due date for removal.
func (p *Patch) ClearDueDate() *Patch {
	empty := ""
	p.DueDate = &empty
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Completed == nil && p.DueDate == nil
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int64 returns a pointer to n.
func Int64(n int64) *int64 { return &n }
