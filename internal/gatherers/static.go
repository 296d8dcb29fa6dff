package gatherers

import (
	"context"
	"net/http"
	"strings"

	"github.com/R3E-Network/composition_layer/internal/config"
	"github.com/R3E-Network/composition_layer/internal/scattergather"
)

// StaticType selects the static gatherer in route configuration.
const StaticType = "static"

// StaticGatherer contributes a fixed list of items without any I/O.
type StaticGatherer struct {
	key   string
	items []interface{}
}

// NewStaticGatherer creates a static gatherer.
func NewStaticGatherer(key string, items []interface{}) (*StaticGatherer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, scattergather.NewConfigError("", scattergather.ErrEmptyKey, "invalid static gatherer")
	}
	return &StaticGatherer{key: key, items: append([]interface{}(nil), items...)}, nil
}

func (g *StaticGatherer) Key() string { return g.key }

// Gather returns a copy of the configured items.
func (g *StaticGatherer) Gather(ctx context.Context, _ *http.Request) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]interface{}{}, g.items...), nil
}

// StaticFactory reads Key and Items.
func StaticFactory(section config.Section, _ *scattergather.Services) (scattergather.Gatherer, error) {
	var items []interface{}
	if err := section.Get("Items").Decode(&items); err != nil {
		return nil, scattergather.NewConfigError(section.Path(), err, "invalid Items")
	}
	g, err := NewStaticGatherer(section.String("Key"), items)
	if err != nil {
		return nil, err
	}
	return g, nil
}
