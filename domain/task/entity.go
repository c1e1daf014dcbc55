package task

import (
	"time"
)

// Task is the core domain entity: a single todo item owned by one user.
type Task struct {
	ID          string     `gorm:"primaryKey;type:text" json:"id"`
	OwnerID     string     `gorm:"column:owner_id;index;not null;type:text" json:"user"`
	Title       string     `gorm:"not null;type:text" json:"title"`
	Description string     `gorm:"not null;default:'';type:text" json:"description"`
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    Priority   `gorm:"not null;default:'Medium';type:text" json:"priority"`
	Revision    int64      `gorm:"not null;default:1" json:"revision"`
	CreatedAt   time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TableName returns the table name for the Task entity.
func (Task) TableName() string {
	return "tasks"
}

// OwnedBy reports whether ownerID is the task's owner.
func (t *Task) OwnedBy(ownerID string) bool {
	return ownerID != "" && t.OwnerID == ownerID
}
