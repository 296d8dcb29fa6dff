// Package httputil provides HTTP client and response utilities for the gateway.
package httputil

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Client Pool
// =============================================================================

// ClientSettings tunes the client used for one downstream key.
type ClientSettings struct {
	// Timeout bounds the whole exchange. Zero uses the pool default.
	Timeout time.Duration
	// RateLimit caps outbound requests per second for the key. Zero disables it.
	RateLimit float64
	// Burst is the limiter bucket size. Defaults to 1 when RateLimit is set.
	Burst int
}

// ClientPoolConfig configures NewClientPool.
type ClientPoolConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	// Transport overrides the shared transport (tests).
	Transport http.RoundTripper
}

// ClientPool hands out one logical *http.Client per downstream key.
// All clients share one connection pool; each key carries its own timeout
// and optional rate limiter. Safe for concurrent use.
type ClientPool struct {
	mu        sync.RWMutex
	clients   map[string]*http.Client
	settings  map[string]ClientSettings
	transport http.RoundTripper
	timeout   time.Duration
}

// NewClientPool creates a pool with a shared transport.
func NewClientPool(cfg ClientPoolConfig) *ClientPool {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		maxIdle := cfg.MaxIdleConns
		if maxIdle == 0 {
			maxIdle = 100
		}
		perHost := cfg.MaxIdleConnsPerHost
		if perHost == 0 {
			perHost = 16
		}
		idle := cfg.IdleConnTimeout
		if idle == 0 {
			idle = 90 * time.Second
		}
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          maxIdle,
			MaxIdleConnsPerHost:   perHost,
			IdleConnTimeout:       idle,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}

	return &ClientPool{
		clients:   make(map[string]*http.Client),
		settings:  make(map[string]ClientSettings),
		transport: transport,
		timeout:   timeout,
	}
}

// ErrConflictingSettings is returned when a key is configured twice with different settings.
var ErrConflictingSettings = errors.New("conflicting client settings")

// Configure sets per-key settings. Call during startup, before the key serves traffic.
// Configuring a key again with equal settings is a no-op; different settings
// fail with ErrConflictingSettings.
func (p *ClientPool) Configure(key string, settings ClientSettings) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("client key required")
	}
	if settings.Timeout < 0 || settings.RateLimit < 0 || settings.Burst < 0 {
		return fmt.Errorf("client %q: settings must not be negative", key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.settings[key]; ok {
		if existing == settings {
			return nil
		}
		return fmt.Errorf("client %q: %w: %+v already set, got %+v", key, ErrConflictingSettings, existing, settings)
	}
	p.settings[key] = settings
	delete(p.clients, key)
	return nil
}

// Settings returns the settings configured for key.
func (p *ClientPool) Settings(key string) (ClientSettings, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.settings[strings.TrimSpace(key)]
	return s, ok
}

// Client returns the client for key, creating it on first use.
func (p *ClientPool) Client(key string) *http.Client {
	p.mu.RLock()
	client, ok := p.clients[key]
	p.mu.RUnlock()
	if ok {
		return client
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[key]; ok {
		return client
	}
	client = p.newClient(p.settings[key])
	p.clients[key] = client
	return client
}

// Keys returns the keys that currently hold a client.
func (p *ClientPool) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.clients))
	for k := range p.clients {
		keys = append(keys, k)
	}
	return keys
}

// CloseIdleConnections closes idle connections in the shared transport.
func (p *ClientPool) CloseIdleConnections() {
	type idleCloser interface{ CloseIdleConnections() }
	if c, ok := p.transport.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}

func (p *ClientPool) newClient(s ClientSettings) *http.Client {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = p.timeout
	}

	transport := p.transport
	if s.RateLimit > 0 {
		burst := s.Burst
		if burst == 0 {
			burst = 1
		}
		transport = &limitedTransport{
			next:    transport,
			limiter: rate.NewLimiter(rate.Limit(s.RateLimit), burst),
		}
	}

	return &http.Client{Timeout: timeout, Transport: transport}
}

// limitedTransport waits for a limiter token before each round trip.
type limitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.next.RoundTrip(req)
}
