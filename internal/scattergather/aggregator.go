package scattergather

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// Aggregator accumulates the items of one request and produces the response value.
//
// Add is called concurrently by every gatherer of the request. Aggregate is
// called once, after all gatherers have completed.
type Aggregator interface {
	Add(items []interface{})
	Aggregate() interface{}
}

// AggregatorFactory resolves the aggregator for one incoming request.
type AggregatorFactory func(r *http.Request) (Aggregator, error)

// Named aggregators always registered by NewServices.
const (
	DefaultAggregatorName = "default"
	JSONAggregatorName    = "json"
)

// DefaultAggregator keeps items as they were produced.
type DefaultAggregator struct {
	mu    sync.Mutex
	items []interface{}
}

// NewDefaultAggregator creates an empty default aggregator.
func NewDefaultAggregator() *DefaultAggregator {
	return &DefaultAggregator{}
}

// Add appends items.
func (a *DefaultAggregator) Add(items []interface{}) {
	if len(items) == 0 {
		return
	}
	a.mu.Lock()
	a.items = append(a.items, items...)
	a.mu.Unlock()
}

// Aggregate returns a copy of all items as []interface{}, never nil.
func (a *DefaultAggregator) Aggregate() interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]interface{}, len(a.items))
	copy(out, a.items)
	return out
}

// JSONAggregator converts every item into a json.RawMessage on Add, so the
// aggregate always serializes. Items that cannot be marshalled become null.
type JSONAggregator struct {
	mu    sync.Mutex
	nodes []json.RawMessage
}

// NewJSONAggregator creates an empty JSON aggregator.
func NewJSONAggregator() *JSONAggregator {
	return &JSONAggregator{}
}

// Add converts and appends items.
func (a *JSONAggregator) Add(items []interface{}) {
	if len(items) == 0 {
		return
	}
	nodes := make([]json.RawMessage, len(items))
	for i, item := range items {
		nodes[i] = toJSONNode(item)
	}
	a.mu.Lock()
	a.nodes = append(a.nodes, nodes...)
	a.mu.Unlock()
}

// Aggregate returns a copy of all nodes as []json.RawMessage, never nil.
func (a *JSONAggregator) Aggregate() interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]json.RawMessage, len(a.nodes))
	copy(out, a.nodes)
	return out
}

var jsonNull = json.RawMessage("null")

func toJSONNode(item interface{}) json.RawMessage {
	switch v := item.(type) {
	case nil:
		return jsonNull
	case json.RawMessage:
		if json.Valid(v) {
			return append(json.RawMessage(nil), v...)
		}
		return jsonNull
	case []byte:
		if json.Valid(v) {
			return append(json.RawMessage(nil), v...)
		}
	case string:
		// only object and array documents; "42" stays a string
		if t := strings.TrimSpace(v); (strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")) && json.Valid([]byte(t)) {
			return json.RawMessage(t)
		}
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return jsonNull
	}
	return raw
}

func defaultAggregatorFactory(*http.Request) (Aggregator, error) {
	return NewDefaultAggregator(), nil
}

func jsonAggregatorFactory(*http.Request) (Aggregator, error) {
	return NewJSONAggregator(), nil
}

var (
	_ Aggregator = (*DefaultAggregator)(nil)
	_ Aggregator = (*JSONAggregator)(nil)
)
