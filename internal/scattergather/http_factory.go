package scattergather

import (
	"strings"

	"github.com/R3E-Network/composition_layer/internal/config"
	"github.com/R3E-Network/composition_layer/internal/httputil"
)

// HTTPGathererFactory builds the built-in HTTP gatherer from configuration.
//
// Recognized fields: Key, DestinationUrl, ForwardHeaders (default true),
// IgnoreDownstreamRequestErrors, CacheTtl, Timeout, RateLimit, Burst.
// Timeout, RateLimit and Burst tune the client shared by every gatherer with
// the same Key; they are applied when the route is registered.
func HTTPGathererFactory(section config.Section, services *Services) (Gatherer, error) {
	g, err := NewHTTPGathererFromSection(section, services)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// NewHTTPGathererFromSection reads the common HTTP gatherer fields from section.
// Extension factories call it and then set their own transformer or mappers.
func NewHTTPGathererFromSection(section config.Section, services *Services, opts ...HTTPGathererOption) (*HTTPGatherer, error) {
	key := section.String("Key")
	g, err := NewHTTPGatherer(key, section.String("DestinationUrl"), opts...)
	if err != nil {
		return nil, withPath(err, section.Path())
	}

	forward, err := section.Bool("ForwardHeaders", true)
	if err != nil {
		return nil, NewConfigError(section.Path(), err, "invalid ForwardHeaders")
	}
	g.ForwardHeaders = forward

	ignore, err := section.Bool("IgnoreDownstreamRequestErrors", false)
	if err != nil {
		return nil, NewConfigError(section.Path(), err, "invalid IgnoreDownstreamRequestErrors")
	}
	g.IgnoreDownstreamRequestErrors = ignore

	ttl, err := section.Duration("CacheTtl", 0)
	if err != nil {
		return nil, NewConfigError(section.Path(), err, "invalid CacheTtl")
	}
	if ttl > 0 {
		if services == nil || services.Cache == nil {
			return nil, NewConfigError(section.Path(), ErrMissingField, "CacheTtl is set but no response cache is configured")
		}
		g.Cache = services.Cache
		g.CacheTTL = ttl
	}

	settings, configured, err := readClientSettings(section)
	if err != nil {
		return nil, err
	}
	if configured {
		g.clientSettings = &settings
	}
	return g, nil
}

func readClientSettings(section config.Section) (httputil.ClientSettings, bool, error) {
	var s httputil.ClientSettings
	var err error

	if s.Timeout, err = section.Duration("Timeout", 0); err != nil {
		return s, false, NewConfigError(section.Path(), err, "invalid Timeout")
	}
	if s.RateLimit, err = section.Float("RateLimit", 0); err != nil {
		return s, false, NewConfigError(section.Path(), err, "invalid RateLimit")
	}
	if s.Burst, err = section.Int("Burst", 0); err != nil {
		return s, false, NewConfigError(section.Path(), err, "invalid Burst")
	}
	if s.Timeout < 0 || s.RateLimit < 0 || s.Burst < 0 {
		return s, false, NewConfigError(section.Path(), nil, "Timeout, RateLimit and Burst must not be negative")
	}
	configured := s.Timeout != 0 || s.RateLimit != 0 || s.Burst != 0
	return s, configured, nil
}

// withPath fills in the configuration path of a *ConfigError that has none.
func withPath(err error, path string) error {
	if ce, ok := err.(*ConfigError); ok && path != "" {
		copied := *ce
		switch {
		case copied.Path == "":
			copied.Path = path
		case strings.HasPrefix(copied.Path, path):
		default:
			copied.Path = path + " (" + copied.Path + ")"
		}
		return &copied
	}
	return err
}
