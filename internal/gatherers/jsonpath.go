package gatherers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/R3E-Network/composition_layer/internal/config"
	"github.com/R3E-Network/composition_layer/internal/scattergather"
)

// JSONPathType selects the JSONPath gatherer in route configuration.
const JSONPathType = "jsonpath"

// NewJSONPathTransformer returns a transform that evaluates path against the
// decoded body. An array result yields its elements, any other value yields
// one item, and a path that matches nothing yields no items. A path that does
// not fit the document's shape, such as a key lookup on a string, is an error.
func NewJSONPathTransformer(path string) (scattergather.ResponseTransformer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("jsonpath: %w", scattergather.ErrMissingField)
	}
	eval, err := jsonpath.New(path)
	if err != nil {
		return nil, fmt.Errorf("jsonpath %q: %w", path, err)
	}

	return func(_ *http.Response, body []byte) ([]interface{}, error) {
		if len(strings.TrimSpace(string(body))) == 0 {
			return []interface{}{}, nil
		}
		var doc interface{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}

		result, err := eval(context.Background(), doc)
		if err != nil {
			if isNoMatch(err) {
				return []interface{}{}, nil
			}
			return nil, fmt.Errorf("jsonpath %q: %w", path, err)
		}
		switch v := result.(type) {
		case nil:
			return []interface{}{}, nil
		case []interface{}:
			return v, nil
		default:
			return []interface{}{v}, nil
		}
	}, nil
}

// isNoMatch reports whether an evaluation error only means the path selects
// nothing: a missing key, an index past the end, or a step through null.
// The library has no typed errors, so its messages are matched.
func isNoMatch(err error) bool {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "unknown key "), strings.HasPrefix(msg, "unknown parameter "):
		return true
	case strings.HasPrefix(msg, "index ") && strings.HasSuffix(msg, " out of bounds"):
		return true
	case strings.HasPrefix(msg, "unsupported value type <nil> "):
		return true
	}
	return false
}

// JSONPathFactory builds an HTTP gatherer whose response is filtered by the
// JSONPath expression in Path. It accepts every HTTP gatherer field.
func JSONPathFactory(section config.Section, services *scattergather.Services) (scattergather.Gatherer, error) {
	path := section.String("Path")
	if path == "" {
		return nil, scattergather.NewConfigError(section.Path(), scattergather.ErrMissingField, "Path is required")
	}
	transform, err := NewJSONPathTransformer(path)
	if err != nil {
		return nil, scattergather.NewConfigError(section.Path(), err, "invalid Path")
	}
	g, err := scattergather.NewHTTPGathererFromSection(section, services, scattergather.WithResponseTransformer(transform))
	if err != nil {
		return nil, err
	}
	return g, nil
}
