package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Loader produces the value to cache on a miss.
type Loader func(ctx context.Context) (any, error)

// Cache is a versioned read-through cache. Bump invalidates every key built
// before it.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader Loader) error
	Bump(ctx context.Context) error
}

type Noop struct{}

func (Noop) BuildKey(_ context.Context, parts ...string) (string, error) {
	return strings.Join(parts, ":"), nil
}

func (Noop) FetchJSON(ctx context.Context, _ string, dest any, loader Loader) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	return roundTrip(value, dest)
}

func (Noop) Bump(_ context.Context) error {
	return nil
}

func roundTrip(value any, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
