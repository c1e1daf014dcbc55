// Package dashboard holds the client-side state of a user's task list and
// reconciles it with the API after each action.
package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/example/task-tracker/client/taskclient"
	"github.com/example/task-tracker/domain/task"
	"golang.org/x/sync/singleflight"
)

// TaskAPI is the subset of *taskclient.Client the controller needs.
type TaskAPI interface {
	List(ctx context.Context) ([]task.Task, error)
	Create(ctx context.Context, req taskclient.CreateRequest) (*task.Task, error)
	Update(ctx context.Context, id string, patch taskclient.Patch) (*task.Task, error)
	Delete(ctx context.Context, id string) (string, error)
}

var _ TaskAPI = (*taskclient.Client)(nil)

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Notifier shows a failure notice to the user.
type Notifier interface {
	Notify(message string)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(message string)

func (f NotifyFunc) Notify(message string) { f(message) }

// ErrTitleRequired is returned by Submit for a blank title. No request is sent.
var ErrTitleRequired = errors.New("title is required")

// DeletePrompt is the question passed to the Confirmer before a delete.
const DeletePrompt = "Delete this task?"

const (
	slotLoad = "load"
	slotForm = "form"
)

// FormValues are the fields of the create/edit form.
type FormValues struct {
	Title       string
	Description string
	DueDate     string
	Priority    string
}

// FormFor returns the form values for editing t.
func FormFor(t task.Task) FormValues {
	form := FormValues{
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
	}
	if t.DueDate != nil {
		form.DueDate = t.DueDate.Format(task.DateLayout)
	}
	return form
}

// Controller owns the in-memory task list, the edit slot and the filter.
// Each action slot (the form, the initial load, each task id) has at most
// one request in flight; a repeated trigger joins the pending call.
type Controller struct {
	api     TaskAPI
	confirm Confirmer
	notify  Notifier
	flights singleflight.Group

	mu      sync.RWMutex
	tasks   []task.Task
	editing *task.Task
	filter  Filter
	loading bool
}

// New creates a Controller. notify may be nil.
func New(api TaskAPI, confirm Confirmer, notify Notifier) *Controller {
	if notify == nil {
		notify = NotifyFunc(func(string) {})
	}
	return &Controller{
		api:     api,
		confirm: confirm,
		notify:  notify,
		tasks:   []task.Task{},
		filter:  FilterAll,
		loading: true,
	}
}

// Load replaces the local list with the server's.
func (c *Controller) Load(ctx context.Context) error {
	_, err, _ := c.flights.Do(slotLoad, func() (any, error) {
		c.setLoading(true)
		defer c.setLoading(false)

		tasks, err := c.api.List(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.tasks = append([]task.Task(nil), tasks...)
		c.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		c.fail(err)
	}
	return err
}

// Submit updates the task being edited, or creates a new one when nothing is
// being edited. An update replaces the task in place and ends editing; a
// create puts the new task first.
func (c *Controller) Submit(ctx context.Context, form FormValues) (*task.Task, error) {
	if strings.TrimSpace(form.Title) == "" {
		return nil, ErrTitleRequired
	}

	v, err, _ := c.flights.Do(slotForm, func() (any, error) {
		editing := c.Editing()
		if editing != nil {
			updated, err := c.api.Update(ctx, editing.ID, patchFromForm(*editing, form))
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.replace(*updated)
			if c.editing != nil && c.editing.ID == updated.ID {
				c.editing = nil
			}
			c.mu.Unlock()
			return updated, nil
		}

		created, err := c.api.Create(ctx, taskclient.CreateRequest{
			Title:       form.Title,
			Description: form.Description,
			DueDate:     form.DueDate,
			Priority:    form.Priority,
		})
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tasks = append([]task.Task{*created}, c.tasks...)
		c.mu.Unlock()
		return created, nil
	})
	if err != nil {
		c.fail(err)
		return nil, err
	}
	return v.(*task.Task), nil
}

// Toggle flips the completed flag of t.
func (c *Controller) Toggle(ctx context.Context, t task.Task) (*task.Task, error) {
	v, err, _ := c.flights.Do(toggleSlot(t.ID), func() (any, error) {
		updated, err := c.api.Update(ctx, t.ID, taskclient.Patch{Completed: taskclient.Bool(!t.Completed)})
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.replace(*updated)
		c.mu.Unlock()
		return updated, nil
	})
	if err != nil {
		c.fail(err)
		return nil, err
	}
	return v.(*task.Task), nil
}

// Remove deletes the task after the Confirmer approves. It reports whether
// the task was deleted.
func (c *Controller) Remove(ctx context.Context, id string) (bool, error) {
	v, err, _ := c.flights.Do(removeSlot(id), func() (any, error) {
		if !c.confirm.Confirm(ctx, DeletePrompt) {
			return false, nil
		}
		if _, err := c.api.Delete(ctx, id); err != nil {
			return false, err
		}

		c.mu.Lock()
		c.tasks = removeByID(c.tasks, id)
		if c.editing != nil && c.editing.ID == id {
			c.editing = nil
		}
		c.mu.Unlock()
		return true, nil
	})
	if err != nil {
		c.fail(err)
		return false, err
	}
	return v.(bool), nil
}

// StartEdit puts t in the edit slot.
func (c *Controller) StartEdit(t task.Task) {
	c.mu.Lock()
	c.editing = &t
	c.mu.Unlock()
}

// CancelEdit clears the edit slot.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	c.editing = nil
	c.mu.Unlock()
}

// Editing returns a copy of the task being edited, or nil.
func (c *Controller) Editing() *task.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.editing == nil {
		return nil
	}
	t := *c.editing
	return &t
}

// SetFilter changes the projection returned by Visible.
func (c *Controller) SetFilter(f Filter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// Filter returns the current filter.
func (c *Controller) Filter() Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

// Tasks returns a copy of the full local list.
func (c *Controller) Tasks() []task.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]task.Task{}, c.tasks...)
}

// Visible returns the tasks matching the current filter, in list order.
func (c *Controller) Visible() []task.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()

	visible := make([]task.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if c.filter.Match(t) {
			visible = append(visible, t)
		}
	}
	return visible
}

// Loading reports whether a Load is pending or has not yet run.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

// replace swaps in t by id. Callers hold c.mu.
func (c *Controller) replace(t task.Task) {
	for i := range c.tasks {
		if c.tasks[i].ID == t.ID {
			c.tasks[i] = t
			return
		}
	}
}

func (c *Controller) fail(err error) {
	var apiErr *taskclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		c.notify.Notify(apiErr.Message)
		return
	}
	c.notify.Notify("Operation failed")
}

// Toggle and Remove on the same task use separate slots; a join only ever
// shares the result of the same action.
func toggleSlot(id string) string {
	return "toggle:" + id
}

func removeSlot(id string) string {
	return "remove:" + id
}

func removeByID(tasks []task.Task, id string) []task.Task {
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// patchFromForm sends title and description as entered. The due date is sent
// only when the form changed it, so a stored time of day survives an edit of
// other fields; an emptied due date clears it. An empty priority leaves it
// unchanged.
func patchFromForm(original task.Task, form FormValues) taskclient.Patch {
	patch := taskclient.Patch{
		Title:       taskclient.String(form.Title),
		Description: taskclient.String(form.Description),
	}
	if form.DueDate != FormFor(original).DueDate {
		patch.DueDate = taskclient.String(form.DueDate)
	}
	if form.Priority != "" {
		patch.Priority = taskclient.String(form.Priority)
	}
	return patch
}
