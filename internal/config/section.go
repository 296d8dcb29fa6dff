// Package config loads gateway configuration.
//
// Route definitions come from a YAML file and are exposed as a Section tree
// whose keys match case-insensitively, so "DestinationUrl", "destinationUrl"
// and "destinationurl" all address the same field. Process settings come
// from the environment (see GatewayConfig).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PathSeparator separates nested keys in Section.Get.
const PathSeparator = ":"

// Section is a read-only view of one node in a configuration tree.
// The zero value is an empty section.
type Section struct {
	node *yaml.Node
	path string
	key  string
}

// Parse builds a section tree from YAML (or JSON) bytes.
// Empty input yields an empty root section.
func Parse(data []byte) (Section, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Section{}, fmt.Errorf("parse configuration: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return Section{}, nil
	}
	return Section{node: doc.Content[0]}, nil
}

// Path returns the colon-separated path of the section from the root.
func (s Section) Path() string {
	return s.path
}

// Key returns the last segment of the section path.
func (s Section) Key() string {
	return s.key
}

// Exists reports whether the section holds a non-null value.
func (s Section) Exists() bool {
	if s.node == nil {
		return false
	}
	return !(s.node.Kind == yaml.ScalarNode && s.node.Tag == "!!null")
}

// Get returns the child section at key. Nested keys may be joined with ":".
// Sequence items are addressed by index ("Gatherers:0:Key").
func (s Section) Get(key string) Section {
	current := s
	for _, part := range strings.Split(key, PathSeparator) {
		current = current.child(strings.TrimSpace(part))
	}
	return current
}

func (s Section) child(key string) Section {
	next := Section{path: joinPath(s.path, key), key: key}
	if s.node == nil {
		return next
	}
	node := resolveAlias(s.node)
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if strings.EqualFold(node.Content[i].Value, key) {
				next.node = resolveAlias(node.Content[i+1])
				return next
			}
		}
	case yaml.SequenceNode:
		if idx, err := strconv.Atoi(key); err == nil && idx >= 0 && idx < len(node.Content) {
			next.node = resolveAlias(node.Content[idx])
		}
	}
	return next
}

// Children returns sequence items in order, or mapping values in declaration order.
// Scalars and empty sections have no children.
func (s Section) Children() []Section {
	if s.node == nil {
		return nil
	}
	node := resolveAlias(s.node)
	switch node.Kind {
	case yaml.SequenceNode:
		out := make([]Section, 0, len(node.Content))
		for i, item := range node.Content {
			key := strconv.Itoa(i)
			out = append(out, Section{node: resolveAlias(item), path: joinPath(s.path, key), key: key})
		}
		return out
	case yaml.MappingNode:
		out := make([]Section, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			out = append(out, Section{node: resolveAlias(node.Content[i+1]), path: joinPath(s.path, key), key: key})
		}
		return out
	}
	return nil
}

// Value returns the scalar value of the section, or "" for missing, null or non-scalar nodes.
func (s Section) Value() string {
	if !s.Exists() {
		return ""
	}
	node := resolveAlias(s.node)
	if node.Kind != yaml.ScalarNode {
		return ""
	}
	return node.Value
}

// String returns the trimmed scalar value at key.
func (s Section) String(key string) string {
	return strings.TrimSpace(s.Get(key).Value())
}

// Bool parses the boolean at key, returning def when the key is absent or blank.
func (s Section) Bool(key string, def bool) (bool, error) {
	raw := s.String(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: invalid boolean %q", joinPath(s.path, key), raw)
	}
	return v, nil
}

// Int parses the integer at key, returning def when the key is absent or blank.
func (s Section) Int(key string, def int) (int, error) {
	raw := s.String(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: invalid integer %q", joinPath(s.path, key), raw)
	}
	return v, nil
}

// Float parses the number at key, returning def when the key is absent or blank.
func (s Section) Float(key string, def float64) (float64, error) {
	raw := s.String(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("%s: invalid number %q", joinPath(s.path, key), raw)
	}
	return v, nil
}

// Duration parses a Go duration ("250ms", "30s") at key. A bare integer is read as seconds.
func (s Section) Duration(key string, def time.Duration) (time.Duration, error) {
	raw := s.String(key)
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: invalid duration %q", joinPath(s.path, key), raw)
	}
	return v, nil
}

// Decode unmarshals the section into v using yaml struct tags.
func (s Section) Decode(v interface{}) error {
	if s.node == nil {
		return nil
	}
	if err := s.node.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", s.displayPath(), err)
	}
	return nil
}

func (s Section) displayPath() string {
	if s.path == "" {
		return "configuration root"
	}
	return s.path
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + PathSeparator + key
}
