package scattergather

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/composition_layer/internal/config"
	"github.com/R3E-Network/composition_layer/internal/httputil"
)

// RouteInfo describes a registered scatter/gather route.
type RouteInfo struct {
	Template            string   `json:"template"`
	Gatherers           []string `json:"gatherers"`
	UseOutputFormatters bool     `json:"use_output_formatters"`
}

// Registrar binds scatter/gather routes to a router.
type Registrar struct {
	router   *mux.Router
	services *Services

	mu     sync.RWMutex
	routes []RouteInfo
}

// NewRegistrar creates a registrar for router. services may only be nil if no
// route is ever mapped; mapping then fails with ErrServicesNotRegistered.
func NewRegistrar(router *mux.Router, services *Services) *Registrar {
	return &Registrar{router: router, services: services}
}

// MapScatterGather registers a GET route for template that runs opts.Gatherers.
// opts is copied; later changes by the caller do not reach the route.
// Client settings requested by the gatherers are applied here and must agree
// with any settings already applied for the same key.
func (r *Registrar) MapScatterGather(template string, opts Options) (*mux.Route, error) {
	if r.services == nil {
		return nil, ErrServicesNotRegistered
	}
	template = strings.TrimSpace(template)
	if template == "" {
		return nil, NewConfigError("", ErrMissingField, "route template is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, withPath(err, template)
	}

	opts = opts.clone()
	tuning := r.tuningFor(template, opts.Gatherers)
	if err := checkClientTuning(tuning, make(map[string]httputil.ClientSettings)); err != nil {
		return nil, err
	}
	if err := applyClientTuning(tuning); err != nil {
		return nil, err
	}

	route := r.router.Handle(template, newHandler(template, opts, r.services)).Methods(http.MethodGet)
	if err := route.GetError(); err != nil {
		return nil, NewConfigError(template, err, "invalid route template")
	}

	info := RouteInfo{
		Template:            template,
		Gatherers:           gathererKeys(opts.Gatherers),
		UseOutputFormatters: opts.UseOutputFormatters,
	}
	r.mu.Lock()
	r.routes = append(r.routes, info)
	r.mu.Unlock()

	r.services.Logger.WithFields(logrus.Fields{
		"route":     template,
		"gatherers": strings.Join(info.Gatherers, ","),
	}).Info("scatter/gather route registered")
	return route, nil
}

// MapScatterGatherFromConfig registers one route per entry of section.
//
// customize, when not nil, may change each route's options after they are
// built from configuration and before the route is registered. Every route is
// loaded and validated, and their client settings checked against each other,
// before any is registered. An empty section registers
// nothing and returns no error.
func (r *Registrar) MapScatterGatherFromConfig(section config.Section, customize func(template string, opts *Options)) ([]*mux.Route, error) {
	if r.services == nil {
		return nil, ErrServicesNotRegistered
	}

	defs, err := LoadOptions(section, r.services)
	if err != nil {
		return nil, err
	}
	for i := range defs {
		if customize != nil {
			customize(defs[i].Template, &defs[i].Options)
		}
		if err := defs[i].Options.Validate(); err != nil {
			return nil, withPath(err, defs[i].Template)
		}
	}

	pending := make(map[string]httputil.ClientSettings)
	for _, def := range defs {
		if err := checkClientTuning(r.tuningFor(def.Template, def.Options.Gatherers), pending); err != nil {
			return nil, err
		}
	}

	routes := make([]*mux.Route, 0, len(defs))
	for _, def := range defs {
		route, err := r.MapScatterGather(def.Template, def.Options)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// Routes returns the routes registered so far, in registration order.
func (r *Registrar) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RouteInfo, len(r.routes))
	copy(out, r.routes)
	return out
}

func gathererKeys(gatherers []Gatherer) []string {
	keys := make([]string, len(gatherers))
	for i, g := range gatherers {
		keys[i] = g.Key()
	}
	return keys
}

// =============================================================================
// Client tuning
// =============================================================================

// ClientTuned is implemented by gatherers that request per-key client settings.
type ClientTuned interface {
	Key() string
	ClientSettings() (httputil.ClientSettings, bool)
}

type clientTuning struct {
	template string
	key      string
	settings httputil.ClientSettings
	provider ClientProvider
}

func (r *Registrar) tuningFor(template string, gatherers []Gatherer) []clientTuning {
	var out []clientTuning
	for _, g := range gatherers {
		tuned, ok := g.(ClientTuned)
		if !ok {
			continue
		}
		settings, ok := tuned.ClientSettings()
		if !ok {
			continue
		}
		provider := r.services.Clients
		if hg, ok := g.(*HTTPGatherer); ok && hg.Clients != nil {
			provider = hg.Clients
		}
		out = append(out, clientTuning{template: template, key: tuned.Key(), settings: settings, provider: provider})
	}
	return out
}

// checkClientTuning rejects settings that disagree with pending or with what
// the provider already holds for the key. Accepted settings are added to pending.
func checkClientTuning(tuning []clientTuning, pending map[string]httputil.ClientSettings) error {
	for _, t := range tuning {
		configurer, ok := t.provider.(ClientConfigurer)
		if !ok {
			return NewConfigError(t.template, ErrMissingField, "gatherer %q sets Timeout, RateLimit or Burst but its client provider cannot be configured", t.key)
		}
		if prev, ok := pending[t.key]; ok && prev != t.settings {
			return NewConfigError(t.template, httputil.ErrConflictingSettings, "gatherer %q: client settings differ from another gatherer with the same key", t.key)
		}
		if prev, ok := configurer.Settings(t.key); ok && prev != t.settings {
			return NewConfigError(t.template, httputil.ErrConflictingSettings, "gatherer %q: client settings differ from a registered route with the same key", t.key)
		}
		pending[t.key] = t.settings
	}
	return nil
}

func applyClientTuning(tuning []clientTuning) error {
	for _, t := range tuning {
		if err := t.provider.(ClientConfigurer).Configure(t.key, t.settings); err != nil {
			return NewConfigError(t.template, err, "gatherer %q: invalid client settings", t.key)
		}
	}
	return nil
}
