package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/example/task-tracker/domain/task"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// setupTestDB opens a private in-memory database with the tasks table.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&domain.Task{}))
	return db
}

func setupTestService(t *testing.T, cache ListCache) (*TaskService, *TaskRepository) {
	t.Helper()
	repo := NewTaskRepository(setupTestDB(t))
	return NewTaskService(repo, cache, &mockLogger{}), repo
}

// memoryCache is a ListCache backed by maps.
type memoryCache struct {
	mu          sync.Mutex
	lists       map[string][]domain.Task
	generations map[string]int64
	gets        int
	invalidated []string
	// beforeSet, when set, runs at the start of SetList without the lock held.
	beforeSet func(ownerID string)
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		lists:       make(map[string][]domain.Task),
		generations: make(map[string]int64),
	}
}

func (c *memoryCache) GetList(_ context.Context, ownerID string) ([]domain.Task, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	tasks, ok := c.lists[ownerID]
	return tasks, ok, nil
}

func (c *memoryCache) Generation(_ context.Context, ownerID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[ownerID], nil
}

func (c *memoryCache) SetList(_ context.Context, ownerID string, gen int64, tasks []domain.Task) (bool, error) {
	if c.beforeSet != nil {
		c.beforeSet(ownerID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[ownerID] != gen {
		return false, nil
	}
	c.lists[ownerID] = tasks
	return true, nil
}

func (c *memoryCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[ownerID]++
	delete(c.lists, ownerID)
	c.invalidated = append(c.invalidated, ownerID)
	return nil
}

func mustCreate(t *testing.T, svc *TaskService, owner string, in domain.CreateInput) *domain.Task {
	t.Helper()
	task, err := svc.Create(context.Background(), owner, in)
	require.NoError(t, err)
	return task
}

func TestTaskService_CreateDefaults(t *testing.T) {
	svc, _ := setupTestService(t, nil)

	task := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Buy milk", Priority: "High"})

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "alice", task.OwnerID)
	assert.False(t, task.Completed)
	assert.Equal(t, domain.PriorityHigh, task.Priority)
	assert.Equal(t, "", task.Description)
	assert.Nil(t, task.DueDate)
	assert.Equal(t, int64(1), task.Revision)

	plain := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Plain"})
	assert.Equal(t, domain.PriorityMedium, plain.Priority)
}

func TestTaskService_CreateRejectsBlankTitle(t *testing.T) {
	svc, repo := setupTestService(t, nil)
	ctx := context.Background()

	for _, title := range []string{"", "   ", "\t\n"} {
		_, err := svc.Create(ctx, "alice", domain.CreateInput{Title: title})
		assert.ErrorIs(t, err, domain.ErrValidation, "title %q", title)
	}

	tasks, err := repo.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskService_CreateRejectsInvalidPriority(t *testing.T) {
	svc, _ := setupTestService(t, nil)

	_, err := svc.Create(context.Background(), "alice", domain.CreateInput{Title: "x", Priority: "Urgent"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "priority", verr.Field)
}

func TestTaskService_ListOrdering(t *testing.T) {
	svc, _ := setupTestService(t, nil)

	t1 := mustCreate(t, svc, "alice", domain.CreateInput{Title: "T1"})
	t2 := mustCreate(t, svc, "alice", domain.CreateInput{Title: "T2"})
	t3 := mustCreate(t, svc, "alice", domain.CreateInput{Title: "T3"})
	mustCreate(t, svc, "bob", domain.CreateInput{Title: "other"})

	tasks, err := svc.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{t3.ID, t2.ID, t1.ID}, []string{tasks[0].ID, tasks[1].ID, tasks[2].ID})
}

func TestTaskService_ListEmpty(t *testing.T) {
	svc, _ := setupTestService(t, nil)

	tasks, err := svc.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestTaskService_OwnershipIsolation(t *testing.T) {
	svc, repo := setupTestService(t, nil)
	ctx := context.Background()

	bobs := mustCreate(t, svc, "bob", domain.CreateInput{Title: "bob's secret", Description: "private"})

	list, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Get(ctx, "alice", bobs.ID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	got, err := svc.Update(ctx, "alice", bobs.ID, []byte(`{"title":"pwned","completed":true}`))
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	assert.Nil(t, got)

	err = svc.Delete(ctx, "alice", bobs.ID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	stored, err := repo.FindByID(ctx, bobs.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob's secret", stored.Title)
	assert.False(t, stored.Completed)
	assert.Equal(t, int64(1), stored.Revision)
}

func TestTaskService_MissingTask(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Update(ctx, "alice", "missing", []byte(`{"title":"x"}`))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Delete(ctx, "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTaskService_PartialUpdate(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	ctx := context.Background()

	task := mustCreate(t, svc, "alice", domain.CreateInput{
		Title:       "Write report",
		Description: "quarterly",
		DueDate:     "2025-04-01",
		Priority:    "Low",
	})

	updated, err := svc.Update(ctx, "alice", task.ID, []byte(`{"priority":"High"}`))
	require.NoError(t, err)

	assert.Equal(t, domain.PriorityHigh, updated.Priority)
	assert.Equal(t, "Write report", updated.Title)
	assert.Equal(t, "quarterly", updated.Description)
	assert.False(t, updated.Completed)
	require.NotNil(t, updated.DueDate)
	assert.True(t, updated.DueDate.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(2), updated.Revision)
}

func TestTaskService_DueDateClearAndKeep(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	ctx := context.Background()

	task := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Pay rent", DueDate: "2025-02-01"})

	kept, err := svc.Update(ctx, "alice", task.ID, []byte(`{"title":"Pay the rent"}`))
	require.NoError(t, err)
	require.NotNil(t, kept.DueDate)

	keptNull, err := svc.Update(ctx, "alice", task.ID, []byte(`{"dueDate":null}`))
	require.NoError(t, err)
	require.NotNil(t, keptNull.DueDate)

	cleared, err := svc.Update(ctx, "alice", task.ID, []byte(`{"dueDate":""}`))
	require.NoError(t, err)
	assert.Nil(t, cleared.DueDate)
	assert.Equal(t, "Pay the rent", cleared.Title)
}

func TestTaskService_NonBooleanCompletedIgnored(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	ctx := context.Background()

	task := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Stretch"})

	for _, body := range []string{`{"completed":"true"}`, `{"completed":1}`, `{"completed":{}}`} {
		updated, err := svc.Update(ctx, "alice", task.ID, []byte(body))
		require.NoError(t, err, body)
		assert.False(t, updated.Completed, body)
	}
}

func TestTaskService_UpdateValidation(t *testing.T) {
	svc, repo := setupTestService(t, nil)
	ctx := context.Background()

	task := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Keep"})

	for _, body := range []string{`{"title":"  "}`, `{"priority":"Meh"}`, `{"dueDate":"soon"}`, `not json`} {
		_, err := svc.Update(ctx, "alice", task.ID, []byte(body))
		assert.ErrorIs(t, err, domain.ErrValidation, body)
	}

	stored, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep", stored.Title)
	assert.Equal(t, int64(1), stored.Revision)
}

func TestTaskService_RevisionConflict(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	ctx := context.Background()

	task := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Shared"})

	first, err := svc.Update(ctx, "alice", task.ID, []byte(`{"title":"First","revision":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Revision)

	_, err = svc.Update(ctx, "alice", task.ID, []byte(`{"title":"Stale","revision":1}`))
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Without a revision the last write wins.
	last, err := svc.Update(ctx, "alice", task.ID, []byte(`{"title":"Last"}`))
	require.NoError(t, err)
	assert.Equal(t, "Last", last.Title)
	assert.Equal(t, int64(3), last.Revision)
}

func TestTaskService_DeleteTwice(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	ctx := context.Background()

	task := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Once"})

	require.NoError(t, svc.Delete(ctx, "alice", task.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "alice", task.ID), domain.ErrNotFound)
}

func TestTaskService_EndToEnd(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	ctx := context.Background()

	created := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Buy milk", Priority: "High"})
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.Completed)
	assert.Equal(t, domain.PriorityHigh, created.Priority)

	toggled, err := svc.Update(ctx, "alice", created.ID, []byte(`{"completed":true}`))
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	assert.Equal(t, created.Title, toggled.Title)
	assert.Equal(t, created.Description, toggled.Description)
	assert.Equal(t, created.Priority, toggled.Priority)
	assert.Equal(t, created.DueDate, toggled.DueDate)
	assert.True(t, created.CreatedAt.Equal(toggled.CreatedAt))

	require.NoError(t, svc.Delete(ctx, "alice", created.ID))

	tasks, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	for _, task := range tasks {
		assert.NotEqual(t, created.ID, task.ID)
	}
}

func TestTaskService_ListCache(t *testing.T) {
	cache := newMemoryCache()
	svc, _ := setupTestService(t, cache)
	ctx := context.Background()

	task := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Cached"})
	assert.Equal(t, []string{"alice"}, cache.invalidated)

	first, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Contains(t, cache.lists, "alice")

	second, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = svc.Update(ctx, "alice", task.ID, []byte(`{"completed":true}`))
	require.NoError(t, err)
	assert.NotContains(t, cache.lists, "alice")

	after, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.True(t, after[0].Completed)

	require.NoError(t, svc.Delete(ctx, "alice", task.ID))
	assert.NotContains(t, cache.lists, "alice")
}

func TestTaskService_ListCacheSkipsFillAfterConcurrentWrite(t *testing.T) {
	cache := newMemoryCache()
	svc, _ := setupTestService(t, cache)
	ctx := context.Background()

	task := mustCreate(t, svc, "alice", domain.CreateInput{Title: "Short lived"})

	// Delete lands after List has read the database but before it fills the cache.
	cache.beforeSet = func(ownerID string) {
		cache.beforeSet = nil
		require.NoError(t, svc.Delete(ctx, ownerID, task.ID))
	}

	stale, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.NotContains(t, cache.lists, "alice")

	fresh, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.Contains(t, cache.lists, "alice")
}

type failingCache struct{ *memoryCache }

func (c *failingCache) GetList(context.Context, string) ([]domain.Task, bool, error) {
	return nil, false, errors.New("redis down")
}

func TestTaskService_ListCacheFailureFallsBack(t *testing.T) {
	svc, _ := setupTestService(t, &failingCache{memoryCache: newMemoryCache()})

	mustCreate(t, svc, "alice", domain.CreateInput{Title: "Still listed"})

	tasks, err := svc.List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newClock(func() time.Time { return fixed })

	a := c.Now()
	b := c.Now()
	assert.True(t, b.After(a))
	assert.Equal(t, time.Microsecond, b.Sub(a))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(&domain.ValidationError{Field: "title", Reason: "is required"}))
	assert.True(t, IsClientError(domain.ErrNotFound))
	assert.True(t, IsClientError(domain.ErrNotOwner))
	assert.True(t, IsClientError(domain.ErrConflict))
	assert.False(t, IsClientError(errors.New("disk full")))
}
