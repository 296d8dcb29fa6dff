package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultRoutesFile is the route file read when no path is configured.
var DefaultRoutesFile = filepath.Join("config", "routes.yaml")

// RawKeys name values that are never expanded, such as inline scripts.
var RawKeys = []string{"Script"}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadFile reads a YAML configuration file into a section tree.
//
// After parsing, ${VAR} references in scalar values are replaced with the
// environment value when VAR is set and left as written otherwise. Values
// under RawKeys are kept verbatim.
func LoadFile(path string) (Section, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Section{}, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}

	root, err := Parse(data)
	if err != nil {
		return Section{}, fmt.Errorf("failed to parse configuration %s: %w", path, err)
	}
	expandEnv(root.node)
	return root, nil
}

// LoadFileOrEmpty loads path, returning an empty section when the file does not exist.
func LoadFileOrEmpty(path string) (Section, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Section{}, nil
	}
	return LoadFile(path)
}

func expandEnv(n *yaml.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.ScalarNode:
		n.Value = expandValue(n.Value)
	case yaml.SequenceNode:
		for _, item := range n.Content {
			expandEnv(item)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if isRawKey(n.Content[i].Value) {
				continue
			}
			expandEnv(n.Content[i+1])
		}
	}
}

func expandValue(v string) string {
	if !strings.Contains(v, "${") {
		return v
	}
	return envRef.ReplaceAllStringFunc(v, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return ref
	})
}

func isRawKey(key string) bool {
	for _, raw := range RawKeys {
		if strings.EqualFold(key, raw) {
			return true
		}
	}
	return false
}
