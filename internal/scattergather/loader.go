package scattergather

import (
	"strings"

	"github.com/R3E-Network/composition_layer/internal/config"
)

// RouteDefinition is one route read from configuration.
type RouteDefinition struct {
	Template string
	Options  Options
}

// LoadOptions builds one RouteDefinition per entry of section.
//
// Each entry has a Template, an optional UseOutputFormatters flag, an optional
// Aggregator name and a Gatherers list. A gatherer with a blank Type is the
// built-in HTTP gatherer; any other Type must have a registered factory.
// An absent or empty section yields no routes.
func LoadOptions(section config.Section, services *Services) ([]RouteDefinition, error) {
	if services == nil {
		return nil, ErrServicesNotRegistered
	}

	entries := section.Children()
	routes := make([]RouteDefinition, 0, len(entries))
	for _, entry := range entries {
		route, err := loadRoute(entry, services)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func loadRoute(entry config.Section, services *Services) (RouteDefinition, error) {
	template := strings.TrimSpace(entry.String("Template"))
	if template == "" {
		return RouteDefinition{}, NewConfigError(entry.Path(), ErrMissingField, "Template is required")
	}

	useFormatters, err := entry.Bool("UseOutputFormatters", false)
	if err != nil {
		return RouteDefinition{}, NewConfigError(entry.Path(), err, "invalid UseOutputFormatters")
	}

	opts := Options{UseOutputFormatters: useFormatters}

	if name := strings.TrimSpace(entry.String("Aggregator")); name != "" {
		factory, ok := services.Aggregator(name)
		if !ok {
			return RouteDefinition{}, NewConfigError(entry.Path(), ErrUnknownAggregator, "route %s: aggregator %q", template, name)
		}
		opts.Aggregator = factory
	}

	for _, gs := range entry.Get("Gatherers").Children() {
		g, err := loadGatherer(gs, template, services)
		if err != nil {
			return RouteDefinition{}, err
		}
		opts.Gatherers = append(opts.Gatherers, g)
	}

	if err := opts.Validate(); err != nil {
		return RouteDefinition{}, withPath(err, entry.Path())
	}
	return RouteDefinition{Template: template, Options: opts}, nil
}

func loadGatherer(section config.Section, template string, services *Services) (Gatherer, error) {
	typeName := strings.TrimSpace(section.String("Type"))
	if typeName == "" {
		g, err := NewHTTPGathererFromSection(section, services)
		if err != nil {
			return nil, err
		}
		return g, nil
	}

	factory, ok := services.Factories.TryGet(typeName)
	if !ok {
		return nil, NewConfigError(section.Path(), ErrUnknownGathererType,
			"route %s: gatherer type %q is not registered (registered: %s)",
			template, typeName, strings.Join(services.Factories.Types(), ", "))
	}

	g, err := factory(section, services)
	if err != nil {
		if IsConfigError(err) {
			return nil, withPath(err, section.Path())
		}
		return nil, NewConfigError(section.Path(), err, "route %s: gatherer type %q", template, typeName)
	}
	if g == nil {
		return nil, NewConfigError(section.Path(), ErrMissingField, "gatherer factory for type %q returned nil", typeName)
	}
	return g, nil
}
