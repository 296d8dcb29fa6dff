package scattergather

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/composition_layer/internal/cache"
	"github.com/R3E-Network/composition_layer/internal/httputil"
	"github.com/R3E-Network/composition_layer/internal/logging"
	"github.com/R3E-Network/composition_layer/internal/metrics"
)

const (
	// DefaultMaxBodyBytes caps a downstream body read by the HTTP gatherer.
	DefaultMaxBodyBytes int64 = 16 << 20
	errorBodyLimit      int64 = 1 << 10
)

// URLMapper computes the outbound URL from the incoming request and the configured destination.
type URLMapper func(r *http.Request, destination string) string

// HeadersMapper copies what it wants from the incoming request onto the outbound one.
type HeadersMapper func(incoming, outgoing *http.Request)

// ResponseTransformer turns a successful downstream response into items.
// body is the full, already decompressed payload; resp.Body must not be read.
// For cached bodies resp is a synthesized 200 response without headers.
type ResponseTransformer func(resp *http.Response, body []byte) ([]interface{}, error)

// HTTPGatherer gathers items with a GET to a downstream HTTP service.
//
// The exported fields configure the gatherer and must not change once its
// route is registered.
type HTTPGatherer struct {
	key string

	DestinationURL       string
	DestinationURLMapper URLMapper

	// ForwardHeaders enables HeadersMapper. NewHTTPGatherer sets it to true.
	ForwardHeaders bool
	HeadersMapper  HeadersMapper

	ResponseTransformer ResponseTransformer

	// IgnoreDownstreamRequestErrors turns any request, status, read or transform
	// failure into an empty contribution instead of failing the whole request.
	IgnoreDownstreamRequestErrors bool

	// Clients overrides the ClientProvider taken from the request's services.
	Clients ClientProvider

	// Cache stores successful bodies for CacheTTL when both are set.
	Cache    cache.Cache
	CacheTTL time.Duration

	MaxBodyBytes int64
	Logger       *logging.Logger

	clientSettings *httputil.ClientSettings

	fallbackOnce   sync.Once
	fallbackClient *http.Client
}

// HTTPGathererOption customizes an HTTPGatherer at construction.
type HTTPGathererOption func(*HTTPGatherer)

// WithDestinationURLMapper replaces the default query-string forwarding.
func WithDestinationURLMapper(m URLMapper) HTTPGathererOption {
	return func(g *HTTPGatherer) { g.DestinationURLMapper = m }
}

// WithForwardHeaders enables or disables header forwarding.
func WithForwardHeaders(forward bool) HTTPGathererOption {
	return func(g *HTTPGatherer) { g.ForwardHeaders = forward }
}

// WithHeadersMapper replaces the default copy-everything header mapping.
func WithHeadersMapper(m HeadersMapper) HTTPGathererOption {
	return func(g *HTTPGatherer) { g.HeadersMapper = m }
}

// WithResponseTransformer replaces the default JSON array transform.
func WithResponseTransformer(t ResponseTransformer) HTTPGathererOption {
	return func(g *HTTPGatherer) { g.ResponseTransformer = t }
}

// WithIgnoreDownstreamRequestErrors sets IgnoreDownstreamRequestErrors.
func WithIgnoreDownstreamRequestErrors(ignore bool) HTTPGathererOption {
	return func(g *HTTPGatherer) { g.IgnoreDownstreamRequestErrors = ignore }
}

// WithClients pins the gatherer to a ClientProvider.
func WithClients(p ClientProvider) HTTPGathererOption {
	return func(g *HTTPGatherer) { g.Clients = p }
}

// WithCache enables response caching.
func WithCache(c cache.Cache, ttl time.Duration) HTTPGathererOption {
	return func(g *HTTPGatherer) {
		g.Cache = c
		g.CacheTTL = ttl
	}
}

// WithClientSettings tunes the client for the gatherer key. The settings are
// applied to the ClientProvider when the route is registered.
func WithClientSettings(settings httputil.ClientSettings) HTTPGathererOption {
	return func(g *HTTPGatherer) { g.clientSettings = &settings }
}

// WithLogger sets the gatherer logger.
func WithLogger(l *logging.Logger) HTTPGathererOption {
	return func(g *HTTPGatherer) { g.Logger = l }
}

// NewHTTPGatherer creates an HTTP gatherer. key must not be blank.
func NewHTTPGatherer(key, destinationURL string, opts ...HTTPGathererOption) (*HTTPGatherer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, NewConfigError("", ErrEmptyKey, "invalid HTTP gatherer")
	}
	destinationURL = strings.TrimSpace(destinationURL)
	if destinationURL == "" {
		return nil, NewConfigError(key, ErrMissingField, "DestinationUrl is required")
	}

	g := &HTTPGatherer{
		key:            key,
		DestinationURL: destinationURL,
		ForwardHeaders: true,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Key returns the gatherer key.
func (g *HTTPGatherer) Key() string {
	return g.key
}

// MapDestinationURL returns the outbound URL for r.
func (g *HTTPGatherer) MapDestinationURL(r *http.Request) string {
	if g.DestinationURLMapper != nil {
		return g.DestinationURLMapper(r, g.DestinationURL)
	}
	return DefaultDestinationURL(r, g.DestinationURL)
}

// MapHeaders populates outgoing headers from incoming.
func (g *HTTPGatherer) MapHeaders(incoming, outgoing *http.Request) {
	if g.HeadersMapper != nil {
		g.HeadersMapper(incoming, outgoing)
		return
	}
	CopyAllHeaders(incoming, outgoing)
}

// TransformResponse turns a downstream body into items.
func (g *HTTPGatherer) TransformResponse(resp *http.Response, body []byte) ([]interface{}, error) {
	if g.ResponseTransformer != nil {
		return g.ResponseTransformer(resp, body)
	}
	return TransformJSONArray(resp, body)
}

// Gather performs the downstream call.
func (g *HTTPGatherer) Gather(ctx context.Context, r *http.Request) ([]interface{}, error) {
	items, err := g.gather(ctx, r)
	if err == nil {
		return items, nil
	}
	// cancellation belongs to the request, not to this downstream
	if g.IgnoreDownstreamRequestErrors && ctx.Err() == nil {
		g.log(ctx).WithError(err).Warn("ignoring downstream error")
		ReportOutcome(ctx, metrics.OutcomeIgnored)
		return []interface{}{}, nil
	}
	return nil, err
}

func (g *HTTPGatherer) gather(ctx context.Context, r *http.Request) ([]interface{}, error) {
	url := g.MapDestinationURL(r)
	cacheKey := g.key + " " + url

	if g.cacheEnabled() {
		body, ok, err := g.Cache.Get(ctx, cacheKey)
		if err != nil {
			g.log(ctx).WithError(err).Warn("response cache read failed")
		} else if ok {
			items, err := g.TransformResponse(&http.Response{StatusCode: http.StatusOK, Header: http.Header{}}, body)
			if err == nil {
				ReportOutcome(ctx, metrics.OutcomeCached)
				return items, nil
			}
			g.log(ctx).WithError(err).Warn("discarding unreadable cached body")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DownstreamError{Key: g.key, URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	if g.ForwardHeaders && r != nil {
		g.MapHeaders(r, req)
	}

	resp, err := g.client(ctx).Do(req)
	if err != nil {
		return nil, &DownstreamError{Key: g.key, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, truncated, _ := httputil.ReadAllWithLimit(resp.Body, errorBodyLimit)
		msg := strings.TrimSpace(string(snippet))
		if truncated {
			msg += "...(truncated)"
		}
		return nil, &DownstreamError{Key: g.key, URL: url, StatusCode: resp.StatusCode, Body: msg}
	}

	body, err := g.readBody(resp)
	if err != nil {
		return nil, &DownstreamError{Key: g.key, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	items, err := g.TransformResponse(resp, body)
	if err != nil {
		return nil, &DownstreamError{Key: g.key, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("transform response: %w", err)}
	}

	if g.cacheEnabled() {
		if err := g.Cache.Set(ctx, cacheKey, body, g.CacheTTL); err != nil {
			g.log(ctx).WithError(err).Warn("response cache write failed")
		}
	}
	return items, nil
}

// ClientSettings returns the per-key client settings requested by the gatherer.
func (g *HTTPGatherer) ClientSettings() (httputil.ClientSettings, bool) {
	if g.clientSettings == nil {
		return httputil.ClientSettings{}, false
	}
	return *g.clientSettings, true
}

func (g *HTTPGatherer) cacheEnabled() bool {
	return g.Cache != nil && g.CacheTTL > 0
}

func (g *HTTPGatherer) readBody(resp *http.Response) ([]byte, error) {
	limit := g.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	var reader io.Reader = resp.Body
	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return httputil.ReadAllStrict(reader, limit)
}

func (g *HTTPGatherer) client(ctx context.Context) *http.Client {
	if g.Clients != nil {
		return g.Clients.Client(g.key)
	}
	if s := ServicesFromContext(ctx); s != nil && s.Clients != nil {
		return s.Clients.Client(g.key)
	}
	g.fallbackOnce.Do(func() {
		g.fallbackClient = &http.Client{Timeout: 30 * time.Second}
	})
	return g.fallbackClient
}

func (g *HTTPGatherer) log(ctx context.Context) *logrus.Entry {
	l := g.Logger
	if l == nil {
		if s := ServicesFromContext(ctx); s != nil && s.Logger != nil {
			l = s.Logger
		} else {
			l = fallbackLogger()
		}
	}
	return l.WithContext(ctx).WithField("gatherer", g.key)
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultDestinationURL appends the incoming query string, if any, to destination.
func DefaultDestinationURL(r *http.Request, destination string) string {
	if r != nil && r.URL != nil && r.URL.RawQuery != "" {
		return destination + "?" + r.URL.RawQuery
	}
	return destination
}

// CopyAllHeaders copies every incoming header onto outgoing without filtering.
func CopyAllHeaders(incoming, outgoing *http.Request) {
	for name, values := range incoming.Header {
		outgoing.Header[name] = append([]string(nil), values...)
	}
}

// TransformJSONArray yields each element of a top-level JSON array as a
// json.RawMessage, in order. An empty body, null, or any non-array document
// yields no items. Invalid JSON is an error.
func TransformJSONArray(_ *http.Response, body []byte) ([]interface{}, error) {
	trimmed := bytes.TrimSpace(body)
	items := []interface{}{}
	if len(trimmed) == 0 {
		return items, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, fmt.Errorf("body is not valid JSON")
	}

	doc := gjson.ParseBytes(trimmed)
	if !doc.IsArray() {
		return items, nil
	}
	doc.ForEach(func(_, value gjson.Result) bool {
		items = append(items, json.RawMessage(value.Raw))
		return true
	})
	return items, nil
}

var (
	defaultLoggerOnce sync.Once
	defaultLogger     *logging.Logger
)

func fallbackLogger() *logging.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = logging.NewDefault("scattergather")
	})
	return defaultLogger
}
