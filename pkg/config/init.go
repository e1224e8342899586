package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// sectionOrder is the order top-level sections appear in a generated file.
var sectionOrder = []string{
	"logging",
	"server",
	"store",
	"broker",
	"adapters",
	"metrics",
	"discovery",
}

var sectionComments = map[string]string{
	"logging":   "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, path)",
	"server":    "Process-wide settings",
	"store":     "Storage backend: memory, filesystem, badger or s3.\nOnly the section named by type is used.",
	"broker":    "Operation layer; verbose logs every operation at INFO",
	"adapters":  "Protocol adapters. Durations accept Go syntax (30s, 5m).",
	"metrics":   "Prometheus endpoint (/metrics, /healthz)",
	"discovery": "etcd registration under <prefix><advertise_addr>",
}

const fileHeader = `fsbroker Configuration File

Every key can be overridden with an environment variable:
FSBROKER_<SECTION>_<KEY>, e.g. FSBROKER_LOGGING_LEVEL=DEBUG`

// InitConfig writes a sample configuration with default values to the
// default location. It refuses to overwrite an existing file unless force
// is set. Returns the written path.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath is InitConfig with an explicit destination.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}

// generateYAMLWithComments renders cfg with the keys Load understands and
// a comment above every section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var raw map[string]any
	if err := mapstructure.Decode(cfg, &raw); err != nil {
		return "", fmt.Errorf("failed to flatten config: %w", err)
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, section := range sectionOrder {
		value, err := toNode(raw[section])
		if err != nil {
			return "", fmt.Errorf("section %s: %w", section, err)
		}
		key := &yaml.Node{
			Kind:        yaml.ScalarNode,
			Value:       section,
			HeadComment: sectionComments[section],
		}
		root.Content = append(root.Content, key, value)
	}

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: fileHeader,
		Content:     []*yaml.Node{root},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.String(), nil
}

// toNode converts a flattened config value into a YAML node. Durations are
// written in Go syntax so viper can parse them back.
func toNode(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		n := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range keys {
			child, err := toNode(x[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, child)
		}
		return n, nil
	case time.Duration:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: x.String()}, nil
	default:
		n := &yaml.Node{}
		if err := n.Encode(x); err != nil {
			return nil, err
		}
		return n, nil
	}
}
