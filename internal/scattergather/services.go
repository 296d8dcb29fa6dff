package scattergather

import (
	"context"
	"sync"

	"github.com/R3E-Network/composition_layer/internal/cache"
	"github.com/R3E-Network/composition_layer/internal/httputil"
	"github.com/R3E-Network/composition_layer/internal/logging"
	"github.com/R3E-Network/composition_layer/internal/metrics"
)

// ClientConfigurer is implemented by client providers that accept per-key settings.
// Configure must reject different settings for a key that is already configured.
type ClientConfigurer interface {
	Configure(key string, settings httputil.ClientSettings) error
	Settings(key string) (httputil.ClientSettings, bool)
}

// Services are the root dependencies shared by every scatter/gather route.
// Build them once at startup with NewServices.
type Services struct {
	Factories  *FactoryRegistry
	Clients    ClientProvider
	Cache      cache.Cache
	Logger     *logging.Logger
	Metrics    *metrics.Collector
	Negotiator *httputil.Negotiator

	aggMu       sync.RWMutex
	aggregators map[string]AggregatorFactory
}

// ServicesOption customizes NewServices.
type ServicesOption func(*Services)

// WithFactoryRegistry replaces the default factory registry.
func WithFactoryRegistry(r *FactoryRegistry) ServicesOption {
	return func(s *Services) { s.Factories = r }
}

// WithServiceClients sets the client provider used by HTTP gatherers.
func WithServiceClients(p ClientProvider) ServicesOption {
	return func(s *Services) { s.Clients = p }
}

// WithServiceCache sets the response cache available to gatherers.
func WithServiceCache(c cache.Cache) ServicesOption {
	return func(s *Services) { s.Cache = c }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *logging.Logger) ServicesOption {
	return func(s *Services) { s.Logger = l }
}

// WithServiceMetrics enables metrics recording.
func WithServiceMetrics(m *metrics.Collector) ServicesOption {
	return func(s *Services) { s.Metrics = m }
}

// WithServiceNegotiator sets the output formatter negotiator.
func WithServiceNegotiator(n *httputil.Negotiator) ServicesOption {
	return func(s *Services) { s.Negotiator = n }
}

// NewServices builds the root services, filling in defaults for anything not set.
// Metrics and Cache stay nil unless provided.
func NewServices(opts ...ServicesOption) *Services {
	s := &Services{
		aggregators: map[string]AggregatorFactory{
			DefaultAggregatorName: defaultAggregatorFactory,
			JSONAggregatorName:    jsonAggregatorFactory,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Factories == nil {
		s.Factories = NewFactoryRegistry()
	}
	if s.Clients == nil {
		s.Clients = httputil.NewClientPool(httputil.ClientPoolConfig{})
	}
	if s.Logger == nil {
		s.Logger = logging.NewDefault("scattergather")
	}
	if s.Negotiator == nil {
		s.Negotiator = httputil.NewNegotiator()
	}
	return s
}

// AddGathererFactory registers a gatherer type for configuration-driven routes.
func (s *Services) AddGathererFactory(typeName string, factory GathererFactory) error {
	return s.Factories.Register(typeName, factory)
}

// AddAggregator registers a named aggregator selectable from route configuration.
func (s *Services) AddAggregator(name string, factory AggregatorFactory) error {
	key := normalizeName(name)
	if key == "" {
		return NewConfigError("", ErrMissingField, "aggregator name is required")
	}
	if factory == nil {
		return NewConfigError(name, ErrMissingField, "aggregator factory is nil")
	}

	s.aggMu.Lock()
	defer s.aggMu.Unlock()
	if s.Factories.Sealed() {
		return NewConfigError(name, ErrRegistrySealed, "cannot register aggregator")
	}
	if _, exists := s.aggregators[key]; exists {
		return NewConfigError(name, ErrDuplicateAggregator, "cannot register aggregator")
	}
	s.aggregators[key] = factory
	return nil
}

// Aggregator returns the named aggregator factory.
func (s *Services) Aggregator(name string) (AggregatorFactory, bool) {
	s.aggMu.RLock()
	defer s.aggMu.RUnlock()
	f, ok := s.aggregators[normalizeName(name)]
	return f, ok
}

type servicesKey struct{}

// WithServices scopes s into ctx for the duration of a request.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFromContext returns the services scoped into ctx, or nil.
func ServicesFromContext(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}
