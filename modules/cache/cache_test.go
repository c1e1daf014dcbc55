package cache

import (
	"context"
	"testing"
	"time"

	domain "github.com/example/task-tracker/domain/task"
	"github.com/redis/go-redis/v9"
)

// Requires Redis on localhost:6379; tests skip otherwise.
const testRedisAddr = "localhost:6379"

func setupTestCache(t *testing.T, prefix string) *Cache {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	cleanupKeys(ctx, client, prefix+"*")
	t.Cleanup(func() {
		cleanupKeys(ctx, client, prefix+"*")
		client.Close()
	})

	return New(client, prefix, time.Minute)
}

func cleanupKeys(ctx context.Context, client *redis.Client, pattern string) {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func TestCache_GetMiss(t *testing.T) {
	cache := setupTestCache(t, "test:tasks:miss:")

	var out string
	found, err := cache.Get(context.Background(), "absent", &out)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Get() found = true for missing key")
	}
	if got := cache.GetStats().Misses; got != 1 {
		t.Errorf("Misses = %d, want 1", got)
	}
}

func TestTaskLists_RoundTrip(t *testing.T) {
	cache := setupTestCache(t, "test:tasks:lists:")
	lists := NewTaskLists(cache)
	ctx := context.Background()

	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{ID: "t2", OwnerID: "u1", Title: "second", Priority: domain.PriorityHigh, DueDate: &due},
		{ID: "t1", OwnerID: "u1", Title: "first", Priority: domain.PriorityLow},
	}

	stored, err := lists.SetList(ctx, "u1", 0, tasks)
	if err != nil || !stored {
		t.Fatalf("SetList() = stored %v, err %v", stored, err)
	}

	got, found, err := lists.GetList(ctx, "u1")
	if err != nil || !found {
		t.Fatalf("GetList() = found %v, err %v", found, err)
	}
	if len(got) != 2 || got[0].ID != "t2" || got[1].ID != "t1" {
		t.Fatalf("GetList() order = %+v", got)
	}
	if got[0].DueDate == nil || !got[0].DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got[0].DueDate, due)
	}

	if err := lists.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, found, _ := lists.GetList(ctx, "u1"); found {
		t.Error("GetList() after Invalidate found = true")
	}
}

func TestTaskLists_EmptyListIsAHit(t *testing.T) {
	cache := setupTestCache(t, "test:tasks:empty:")
	lists := NewTaskLists(cache)
	ctx := context.Background()

	if _, err := lists.SetList(ctx, "u2", 0, nil); err != nil {
		t.Fatalf("SetList() error = %v", err)
	}
	got, found, err := lists.GetList(ctx, "u2")
	if err != nil || !found {
		t.Fatalf("GetList() = found %v, err %v", found, err)
	}
	if len(got) != 0 {
		t.Errorf("GetList() = %v, want empty", got)
	}
}

func TestTaskLists_StaleGenerationIsNotStored(t *testing.T) {
	cache := setupTestCache(t, "test:tasks:gen:")
	lists := NewTaskLists(cache)
	ctx := context.Background()

	gen, err := lists.Generation(ctx, "u3")
	if err != nil {
		t.Fatalf("Generation() error = %v", err)
	}
	if gen != 0 {
		t.Fatalf("Generation() = %d, want 0 for a fresh owner", gen)
	}

	// A write lands between the database read and the cache fill.
	if err := lists.Invalidate(ctx, "u3"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	stale := []domain.Task{{ID: "deleted", OwnerID: "u3", Title: "gone"}}
	stored, err := lists.SetList(ctx, "u3", gen, stale)
	if err != nil {
		t.Fatalf("SetList() error = %v", err)
	}
	if stored {
		t.Fatal("SetList() stored a list read under an old generation")
	}
	if _, found, _ := lists.GetList(ctx, "u3"); found {
		t.Fatal("GetList() found the stale list")
	}

	current, err := lists.Generation(ctx, "u3")
	if err != nil || current != gen+1 {
		t.Fatalf("Generation() = %d, %v; want %d", current, err, gen+1)
	}
	stored, err = lists.SetList(ctx, "u3", current, []domain.Task{})
	if err != nil || !stored {
		t.Fatalf("SetList() with current generation = stored %v, err %v", stored, err)
	}
}
