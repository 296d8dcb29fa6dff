package scattergather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Value string `json:"Value"`
}

type sampleGatherer struct {
	key   string
	items []sample
	err   error
}

func (g sampleGatherer) Key() string { return g.key }

func (g sampleGatherer) GatherTyped(context.Context, *http.Request) ([]sample, error) {
	return g.items, g.err
}

func TestAsGatherer(t *testing.T) {
	g := AsGatherer[sample](sampleGatherer{key: "typed", items: []sample{{"A"}, {"B"}}})
	assert.Equal(t, "typed", g.Key())

	items, err := g.Gather(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{sample{"A"}, sample{"B"}}, items)
}

func TestAsGatherer_Error(t *testing.T) {
	boom := errors.New("boom")
	g := AsGatherer[sample](sampleGatherer{key: "typed", err: boom})

	items, err := g.Gather(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, items)
}

func TestNewGathererFunc_Validation(t *testing.T) {
	_, err := NewGathererFunc(" ", emptyGather)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = NewGathererFunc("k", nil)
	assert.ErrorIs(t, err, ErrMissingField)
	assert.True(t, IsConfigError(err))
}
