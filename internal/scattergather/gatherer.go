package scattergather

import (
	"context"
	"net/http"
	"strings"
)

// Gatherer retrieves one downstream source's contribution to a scatter/gather response.
//
// A gatherer is built once at startup and serves every request to its route,
// so Gather must be safe for concurrent use. ctx is cancelled when the incoming
// request ends or a sibling gatherer fails; r is the incoming request and must
// not be modified.
type Gatherer interface {
	Key() string
	Gather(ctx context.Context, r *http.Request) ([]interface{}, error)
}

// TypedGatherer is a Gatherer whose items share one static type.
// Wrap it with AsGatherer to register it on a route.
type TypedGatherer[T any] interface {
	Key() string
	GatherTyped(ctx context.Context, r *http.Request) ([]T, error)
}

// AsGatherer adapts a TypedGatherer to the untyped Gatherer contract.
func AsGatherer[T any](g TypedGatherer[T]) Gatherer {
	return typedAdapter[T]{inner: g}
}

type typedAdapter[T any] struct {
	inner TypedGatherer[T]
}

func (a typedAdapter[T]) Key() string { return a.inner.Key() }

func (a typedAdapter[T]) Gather(ctx context.Context, r *http.Request) ([]interface{}, error) {
	typed, err := a.inner.GatherTyped(ctx, r)
	if err != nil {
		return nil, err
	}
	items := make([]interface{}, len(typed))
	for i, item := range typed {
		items[i] = item
	}
	return items, nil
}

// GatherFunc is the signature of an inline gatherer body.
type GatherFunc func(ctx context.Context, r *http.Request) ([]interface{}, error)

// NewGathererFunc builds a Gatherer from a key and a function.
func NewGathererFunc(key string, fn GatherFunc) (Gatherer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, NewConfigError("", ErrEmptyKey, "invalid gatherer")
	}
	if fn == nil {
		return nil, NewConfigError(key, ErrMissingField, "gather function is nil")
	}
	return funcGatherer{key: key, fn: fn}, nil
}

type funcGatherer struct {
	key string
	fn  GatherFunc
}

func (g funcGatherer) Key() string { return g.key }

func (g funcGatherer) Gather(ctx context.Context, r *http.Request) ([]interface{}, error) {
	return g.fn(ctx, r)
}

// ClientProvider hands out one *http.Client per gatherer key.
// Implementations must be safe for concurrent use.
type ClientProvider interface {
	Client(key string) *http.Client
}
