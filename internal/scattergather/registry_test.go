package scattergather

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/composition_layer/internal/config"
	"github.com/R3E-Network/composition_layer/internal/logging"
)

func emptyGather(context.Context, *http.Request) ([]interface{}, error) {
	return nil, nil
}

func nopFactory(section config.Section, services *Services) (Gatherer, error) {
	return NewGathererFunc(section.String("Key"), emptyGather)
}

func TestFactoryRegistry_BuiltinHTTP(t *testing.T) {
	r := NewFactoryRegistry()
	f, ok := r.TryGet("HTTP")
	require.True(t, ok)
	assert.NotNil(t, f)
	assert.Equal(t, []string{"http"}, r.Types())
}

func TestFactoryRegistry_DuplicateIsCaseInsensitive(t *testing.T) {
	r := NewFactoryRegistry()
	require.NoError(t, r.Register("Custom", nopFactory))

	err := r.Register("custom", nopFactory)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateGathererFactory))

	err = r.Register("http", nopFactory)
	assert.True(t, errors.Is(err, ErrDuplicateGathererFactory))

	_, ok := r.TryGet("CUSTOM")
	assert.True(t, ok)
	assert.Equal(t, []string{"custom", "http"}, r.Types())
}

func TestFactoryRegistry_InvalidRegistrations(t *testing.T) {
	r := NewFactoryRegistry()
	assert.True(t, IsConfigError(r.Register(" ", nopFactory)))
	assert.True(t, IsConfigError(r.Register("x", nil)))

	_, ok := r.TryGet("missing")
	assert.False(t, ok)
}

func TestFactoryRegistry_Seal(t *testing.T) {
	r := NewFactoryRegistry()
	assert.False(t, r.Sealed())
	r.Seal()
	assert.True(t, r.Sealed())

	err := r.Register("late", nopFactory)
	assert.True(t, errors.Is(err, ErrRegistrySealed))

	_, ok := r.TryGet("http")
	assert.True(t, ok)
}

func TestServices_Defaults(t *testing.T) {
	s := NewServices()
	assert.NotNil(t, s.Factories)
	assert.NotNil(t, s.Clients)
	assert.NotNil(t, s.Logger)
	assert.NotNil(t, s.Negotiator)
	assert.Nil(t, s.Metrics)
	assert.Nil(t, s.Cache)

	_, ok := s.Aggregator("DEFAULT")
	assert.True(t, ok)
	_, ok = s.Aggregator("json")
	assert.True(t, ok)
}

func TestServices_AddGathererFactory(t *testing.T) {
	s := NewServices(WithServiceLogger(logging.NewDiscard("test")))
	require.NoError(t, s.AddGathererFactory("custom", nopFactory))
	assert.True(t, errors.Is(s.AddGathererFactory("Custom", nopFactory), ErrDuplicateGathererFactory))
}

func TestServices_AddAggregator(t *testing.T) {
	s := NewServices()
	factory := func(*http.Request) (Aggregator, error) { return NewDefaultAggregator(), nil }

	require.NoError(t, s.AddAggregator("Counting", factory))
	_, ok := s.Aggregator("counting")
	assert.True(t, ok)

	assert.True(t, errors.Is(s.AddAggregator("json", factory), ErrDuplicateAggregator))
	assert.True(t, IsConfigError(s.AddAggregator("", factory)))

	s.Factories.Seal()
	assert.True(t, errors.Is(s.AddAggregator("late", factory), ErrRegistrySealed))
}

func TestServicesFromContext(t *testing.T) {
	s := NewServices()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, ServicesFromContext(req.Context()))
	assert.Same(t, s, ServicesFromContext(WithServices(req.Context(), s)))
}
