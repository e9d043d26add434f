package kv

import (
	"context"
	"errors"
	"os"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"schoolbridge/portal/internal/db"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if err := store.Set(ctx, "a", "2"); err != nil {
		t.Fatalf("overwrite error: %v", err)
	}
	if err := store.Set(ctx, "b", `{"x":true}`); err != nil {
		t.Fatalf("set error: %v", err)
	}
	value, ok, err := Lookup(ctx, store, "a")
	if err != nil || !ok || value != "2" {
		t.Fatalf("expected a=2, got %q ok=%v err=%v", value, ok, err)
	}
	if err := store.Delete(ctx, "a", "b", "never-set"); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if _, ok, _ := Lookup(ctx, store, "b"); ok {
		t.Fatalf("expected b to be deleted")
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("empty delete error: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	exerciseStore(t, NewRedisStore(client))
}

func TestNamespaceIsolatesInstallations(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStore()
	first := Namespace(backend, "installation:one")
	second := Namespace(backend, "installation:two")

	if err := first.Set(ctx, "role", "teacher"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if _, ok, _ := Lookup(ctx, second, "role"); ok {
		t.Fatalf("second installation must not see first installation keys")
	}
	if err := second.Delete(ctx, "role"); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if value, _, _ := Lookup(ctx, first, "role"); value != "teacher" {
		t.Fatalf("delete in second namespace leaked into first")
	}

	keys := backend.Keys()
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "installation:one:role" {
		t.Fatalf("unexpected backend keys: %v", keys)
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PORTAL_TEST_DB")
	if url == "" {
		t.Skip("PORTAL_TEST_DB not set")
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
	}
	defer pool.Close()

	store := NewPostgresStore(pool)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema error: %v", err)
	}
	exerciseStore(t, Namespace(store, "test"))
}
