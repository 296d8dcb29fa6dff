package scattergather

import (
	"fmt"
	"strings"
)

// Options configures one scatter/gather route.
type Options struct {
	// Gatherers run concurrently for every request, in no particular order.
	Gatherers []Gatherer

	// Aggregator resolves a per-request aggregator. Nil uses NewDefaultAggregator.
	Aggregator AggregatorFactory

	// UseOutputFormatters negotiates the response format from the Accept header
	// instead of always writing JSON.
	UseOutputFormatters bool
}

// Validate checks that every gatherer is present and keyed.
func (o *Options) Validate() error {
	for i, g := range o.Gatherers {
		if g == nil {
			return NewConfigError(fmt.Sprintf("Gatherers:%d", i), ErrMissingField, "gatherer is nil")
		}
		if strings.TrimSpace(g.Key()) == "" {
			return NewConfigError(fmt.Sprintf("Gatherers:%d", i), ErrEmptyKey, "invalid gatherer")
		}
	}
	return nil
}

// clone returns a copy whose gatherer slice is not shared with the caller.
func (o Options) clone() Options {
	o.Gatherers = append([]Gatherer(nil), o.Gatherers...)
	return o
}
