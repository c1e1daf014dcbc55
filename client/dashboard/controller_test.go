package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/task-tracker/client/taskclient"
	"github.com/example/task-tracker/domain/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory TaskAPI. Setting gate blocks Update until it is closed.
type fakeAPI struct {
	mu      sync.Mutex
	tasks   []task.Task
	nextID  int
	err     error
	gate    chan struct{}
	started chan string

	listCalls   atomic.Int32
	createCalls atomic.Int32
	updateCalls atomic.Int32
	deleteCalls atomic.Int32
	lastPatch   taskclient.Patch
}

func (f *fakeAPI) List(ctx context.Context) ([]task.Task, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]task.Task{}, f.tasks...), nil
}

func (f *fakeAPI) Create(ctx context.Context, req taskclient.CreateRequest) (*task.Task, error) {
	f.createCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	priority := task.Priority(req.Priority)
	if priority == "" {
		priority = task.DefaultPriority
	}
	t := task.Task{ID: fmt.Sprintf("new-%d", f.nextID), Title: req.Title, Description: req.Description, Priority: priority}
	f.tasks = append([]task.Task{t}, f.tasks...)
	return &t, nil
}

func (f *fakeAPI) Update(ctx context.Context, id string, patch taskclient.Patch) (*task.Task, error) {
	f.updateCalls.Add(1)
	if f.started != nil {
		f.started <- id
	}
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPatch = patch
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.tasks {
		if f.tasks[i].ID != id {
			continue
		}
		t := &f.tasks[i]
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Priority != nil {
			t.Priority = task.Priority(*patch.Priority)
		}
		if patch.Completed != nil {
			t.Completed = *patch.Completed
		}
		updated := *t
		return &updated, nil
	}
	return nil, &taskclient.APIError{Status: http.StatusNotFound, Message: "Task not found"}
}

func (f *fakeAPI) Delete(ctx context.Context, id string) (string, error) {
	f.deleteCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.tasks = removeByID(f.tasks, id)
	return "Task removed", nil
}

func (f *fakeAPI) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type notices struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notices) Notify(message string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, message)
	n.mu.Unlock()
}

func (n *notices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.msgs...)
}

func always(answer bool) ConfirmFunc {
	return func(ctx context.Context, prompt string) bool { return answer }
}

func seeded() *fakeAPI {
	return &fakeAPI{tasks: []task.Task{
		{ID: "t3", Title: "Third", Priority: task.PriorityHigh},
		{ID: "t2", Title: "Second", Priority: task.PriorityMedium, Completed: true},
		{ID: "t1", Title: "First", Priority: task.PriorityLow},
	}}
}

func ids(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestController_Load(t *testing.T) {
	api := seeded()
	c := New(api, always(true), nil)

	assert.True(t, c.Loading())
	require.NoError(t, c.Load(context.Background()))
	assert.False(t, c.Loading())
	assert.Equal(t, []string{"t3", "t2", "t1"}, ids(c.Tasks()))

	api.tasks = api.tasks[:1]
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"t3"}, ids(c.Tasks()))
}

func TestController_LoadFailureKeepsState(t *testing.T) {
	api := seeded()
	n := &notices{}
	c := New(api, always(true), n)
	require.NoError(t, c.Load(context.Background()))

	api.setErr(errors.New("connection refused"))
	require.Error(t, c.Load(context.Background()))
	assert.False(t, c.Loading())
	assert.Equal(t, []string{"t3", "t2", "t1"}, ids(c.Tasks()))
	assert.Equal(t, []string{"Operation failed"}, n.all())
}

func TestController_SubmitCreatesAndPrepends(t *testing.T) {
	api := seeded()
	c := New(api, always(true), nil)
	require.NoError(t, c.Load(context.Background()))

	created, err := c.Submit(context.Background(), FormValues{Title: "Buy milk", Priority: "High"})
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", created.Title)
	assert.Equal(t, []string{created.ID, "t3", "t2", "t1"}, ids(c.Tasks()))
	assert.Equal(t, int32(0), api.updateCalls.Load())
}

func TestController_SubmitBlankTitleSendsNothing(t *testing.T) {
	api := seeded()
	c := New(api, always(true), nil)

	_, err := c.Submit(context.Background(), FormValues{Title: "   "})
	assert.ErrorIs(t, err, ErrTitleRequired)
	assert.Equal(t, int32(0), api.createCalls.Load())
}

func TestController_SubmitUpdatesEditTarget(t *testing.T) {
	api := seeded()
	c := New(api, always(true), nil)
	require.NoError(t, c.Load(context.Background()))

	before := c.Tasks()
	c.StartEdit(before[1])
	require.NotNil(t, c.Editing())

	form := FormFor(before[1])
	form.Title = "Second, renamed"
	updated, err := c.Submit(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, "t2", updated.ID)
	assert.Nil(t, c.Editing())

	after := c.Tasks()
	assert.Equal(t, []string{"t3", "t2", "t1"}, ids(after))
	assert.Equal(t, "Second, renamed", after[1].Title)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[2], after[2])

	assert.Nil(t, api.lastPatch.DueDate)
	assert.Equal(t, int32(0), api.createCalls.Load())
}

func TestController_SubmitDueDateOnlyWhenChanged(t *testing.T) {
	due := time.Date(2025, 6, 1, 17, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		dueDate string
		want    *string
	}{
		{"unchanged keeps the stored time", "2025-06-01", nil},
		{"emptied clears", "", taskclient.String("")},
		{"new date is sent", "2025-07-04", taskclient.String("2025-07-04")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{tasks: []task.Task{
				{ID: "t1", Title: "Dentist", Priority: task.PriorityMedium, DueDate: &due},
			}}
			c := New(api, always(true), nil)
			require.NoError(t, c.Load(context.Background()))

			c.StartEdit(c.Tasks()[0])
			form := FormFor(c.Tasks()[0])
			assert.Equal(t, "2025-06-01", form.DueDate)
			form.Title = "Dentist at 5:30"
			form.DueDate = tt.dueDate

			_, err := c.Submit(context.Background(), form)
			require.NoError(t, err)
			require.NotNil(t, api.lastPatch.Title)
			assert.Equal(t, "Dentist at 5:30", *api.lastPatch.Title)
			assert.Equal(t, tt.want, api.lastPatch.DueDate)
		})
	}
}

func TestController_SubmitFailureKeepsEditSlot(t *testing.T) {
	api := seeded()
	n := &notices{}
	c := New(api, always(true), n)
	require.NoError(t, c.Load(context.Background()))
	c.StartEdit(c.Tasks()[0])

	api.setErr(&taskclient.APIError{Status: http.StatusUnauthorized, Message: "Not authorized"})
	_, err := c.Submit(context.Background(), FormValues{Title: "x"})
	require.Error(t, err)

	assert.NotNil(t, c.Editing())
	assert.Equal(t, "Third", c.Tasks()[0].Title)
	assert.Equal(t, []string{"Not authorized"}, n.all())
}

func TestController_CancelEdit(t *testing.T) {
	c := New(seeded(), always(true), nil)
	c.StartEdit(task.Task{ID: "t1"})
	c.CancelEdit()
	assert.Nil(t, c.Editing())
}

func TestController_Toggle(t *testing.T) {
	api := seeded()
	c := New(api, always(true), nil)
	require.NoError(t, c.Load(context.Background()))

	target := c.Tasks()[2]
	updated, err := c.Toggle(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, updated.Completed)

	require.NotNil(t, api.lastPatch.Completed)
	assert.True(t, *api.lastPatch.Completed)
	assert.Nil(t, api.lastPatch.Title)

	tasks := c.Tasks()
	assert.True(t, tasks[2].Completed)
	assert.Equal(t, target.Title, tasks[2].Title)
}

func TestController_Remove(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		api := seeded()
		c := New(api, always(false), nil)
		require.NoError(t, c.Load(context.Background()))

		removed, err := c.Remove(context.Background(), "t2")
		require.NoError(t, err)
		assert.False(t, removed)
		assert.Equal(t, int32(0), api.deleteCalls.Load())
		assert.Len(t, c.Tasks(), 3)
	})

	t.Run("confirmed", func(t *testing.T) {
		api := seeded()
		var prompt string
		c := New(api, ConfirmFunc(func(ctx context.Context, p string) bool {
			prompt = p
			return true
		}), nil)
		require.NoError(t, c.Load(context.Background()))
		c.StartEdit(c.Tasks()[1])

		removed, err := c.Remove(context.Background(), "t2")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Equal(t, DeletePrompt, prompt)
		assert.Equal(t, []string{"t3", "t1"}, ids(c.Tasks()))
		assert.Nil(t, c.Editing())
	})

	t.Run("failure keeps task", func(t *testing.T) {
		api := seeded()
		n := &notices{}
		c := New(api, always(true), n)
		require.NoError(t, c.Load(context.Background()))

		api.setErr(errors.New("timeout"))
		removed, err := c.Remove(context.Background(), "t2")
		require.Error(t, err)
		assert.False(t, removed)
		assert.Len(t, c.Tasks(), 3)
		assert.Len(t, n.all(), 1)
	})
}

func TestController_Filters(t *testing.T) {
	c := New(seeded(), always(true), nil)
	require.NoError(t, c.Load(context.Background()))

	tests := []struct {
		filter Filter
		want   []string
	}{
		{FilterAll, []string{"t3", "t2", "t1"}},
		{FilterActive, []string{"t3", "t1"}},
		{FilterCompleted, []string{"t2"}},
		{FilterHigh, []string{"t3"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			c.SetFilter(tt.filter)
			assert.Equal(t, tt.filter, c.Filter())
			assert.Equal(t, tt.want, ids(c.Visible()))
			assert.Len(t, c.Tasks(), 3)
		})
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("completed")
	require.NoError(t, err)
	assert.Equal(t, FilterCompleted, f)

	_, err = ParseFilter("urgent")
	assert.Error(t, err)
}

func TestController_ToggleIsSingleFlightPerTask(t *testing.T) {
	api := seeded()
	c := New(api, always(true), nil)
	require.NoError(t, c.Load(context.Background()))

	api.gate = make(chan struct{})
	api.started = make(chan string, 4)
	target := c.Tasks()[0]

	var wg sync.WaitGroup
	results := make([]*task.Task, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Toggle(context.Background(), target)
		}(i)
		if i == 0 {
			<-api.started
		}
	}

	// Give the second trigger time to join the pending call.
	time.Sleep(100 * time.Millisecond)
	close(api.gate)
	wg.Wait()

	assert.Equal(t, int32(1), api.updateCalls.Load())
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.True(t, results[0].Completed)
	assert.True(t, results[1].Completed)
	assert.True(t, c.Tasks()[0].Completed)
}

func TestController_DifferentTasksDoNotShareSlot(t *testing.T) {
	api := seeded()
	c := New(api, always(true), nil)
	require.NoError(t, c.Load(context.Background()))

	api.gate = make(chan struct{})
	api.started = make(chan string, 4)
	tasks := c.Tasks()

	var wg sync.WaitGroup
	for _, tk := range tasks[:2] {
		wg.Add(1)
		go func(tk task.Task) {
			defer wg.Done()
			_, _ = c.Toggle(context.Background(), tk)
		}(tk)
	}

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case id := <-api.started:
			seen[id] = true
		case <-time.After(5 * time.Second):
			t.Fatal("toggles on different tasks did not run concurrently")
		}
	}
	close(api.gate)
	wg.Wait()

	assert.Equal(t, int32(2), api.updateCalls.Load())
}

func TestController_RemoveDuringToggleOfSameTask(t *testing.T) {
	api := seeded()
	c := New(api, always(true), nil)
	require.NoError(t, c.Load(context.Background()))

	api.gate = make(chan struct{})
	api.started = make(chan string, 1)
	target := c.Tasks()[0]

	toggleErr := make(chan error, 1)
	go func() {
		_, err := c.Toggle(context.Background(), target)
		toggleErr <- err
	}()
	<-api.started

	removed, err := c.Remove(context.Background(), target.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, int32(1), api.deleteCalls.Load())
	assert.NotContains(t, ids(c.Tasks()), target.ID)

	close(api.gate)
	// The toggle reaches a task that no longer exists and fails without
	// bringing it back.
	assert.Error(t, <-toggleErr)
	assert.NotContains(t, ids(c.Tasks()), target.ID)
}

func TestController_ToggleDuringRemoveOfSameTask(t *testing.T) {
	api := seeded()
	asked := make(chan struct{})
	answer := make(chan bool)
	confirm := ConfirmFunc(func(ctx context.Context, prompt string) bool {
		close(asked)
		return <-answer
	})
	c := New(api, confirm, nil)
	require.NoError(t, c.Load(context.Background()))
	target := c.Tasks()[0]

	type removeResult struct {
		removed bool
		err     error
	}
	done := make(chan removeResult, 1)
	go func() {
		removed, err := c.Remove(context.Background(), target.ID)
		done <- removeResult{removed, err}
	}()
	<-asked

	toggled, err := c.Toggle(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	assert.Equal(t, int32(1), api.updateCalls.Load())

	answer <- false
	res := <-done
	require.NoError(t, res.err)
	assert.False(t, res.removed)
	assert.Equal(t, int32(0), api.deleteCalls.Load())
	assert.True(t, c.Tasks()[0].Completed)
}
