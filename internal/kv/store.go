package kv

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key_not_found")

// Store is the persisted key-value space shared by the resolvers. Each
// resolver owns a disjoint set of keys; nothing spans keys transactionally.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type namespaced struct {
	prefix string
	inner  Store
}

// Namespace scopes every key of inner under prefix, so several installations
// can share one backend.
func Namespace(inner Store, prefix string) Store {
	return &namespaced{prefix: prefix + ":", inner: inner}
}

func (n *namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, keys ...string) error {
	scoped := make([]string, 0, len(keys))
	for _, key := range keys {
		scoped = append(scoped, n.prefix+key)
	}
	return n.inner.Delete(ctx, scoped...)
}

// Lookup wraps Get and folds ErrNotFound into ok=false.
func Lookup(ctx context.Context, store Store, key string) (string, bool, error) {
	value, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
