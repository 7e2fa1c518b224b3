// Package config provides the immutable dotted-key configuration shared by
// every component of the agent and the controller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	liberrors "liebert/internal/errors"
)

// Config is a read-only map of dotted keys (controller.host,
// builtin.cpu.interval) to string values. It is built once at startup and
// never modified, so it can be shared between goroutines freely.
type Config struct {
	values map[string]string
}

// New builds a Config from layers. Later layers override earlier ones.
func New(layers ...map[string]string) *Config {
	values := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			values[k] = v
		}
	}
	return &Config{values: values}
}

// Load layers defaults, the YAML file at path (skipped when path is empty)
// and CLI overrides, in that order.
func Load(path string, defaults, overrides map[string]string) (*Config, error) {
	var file map[string]string
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		file, err = ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return New(defaults, file, overrides), nil
}

// ParseYAML flattens a YAML document into dotted keys. Nested mappings join
// their keys with dots, sequences become comma separated lists.
func ParseYAML(data []byte) (map[string]string, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if err := flatten("", doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, node map[string]interface{}, out map[string]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		case []interface{}:
			items := make([]string, 0, len(val))
			for _, item := range val {
				if _, nested := item.(map[string]interface{}); nested {
					return fmt.Errorf("key %s: lists of mappings are not supported", key)
				}
				items = append(items, fmt.Sprint(item))
			}
			out[key] = strings.Join(items, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return nil
}

// ParseOverrides parses key=value pairs given on the command line.
func ParseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", pair)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// Get returns the value at path.
func (c *Config) Get(path string) (string, bool) {
	v, ok := c.values[path]
	return v, ok
}

// MustGet returns the value at path and panics when the key is missing.
// Use it only for keys that are validated at startup.
func (c *Config) MustGet(path string) string {
	v, ok := c.values[path]
	if !ok {
		panic(missing(path))
	}
	return v
}

// Require returns an error naming every key in keys that is not set.
func (c *Config) Require(keys ...string) error {
	v := NewValidator()
	for _, k := range keys {
		if _, ok := c.values[k]; !ok {
			v.AddError(k, "is required", nil)
		}
	}
	return v.Validate()
}

func (c *Config) Int(path string) (int, error) {
	s, ok := c.values[path]
	if !ok {
		return 0, missing(path)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, invalid(path, "not an integer", err)
	}
	return n, nil
}

func (c *Config) Bool(path string) (bool, error) {
	s, ok := c.values[path]
	if !ok {
		return false, missing(path)
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, invalid(path, "not a boolean", err)
	}
	return b, nil
}

// Enabled is Bool for optional feature flags: a missing key means disabled.
func (c *Config) Enabled(path string) bool {
	b, err := c.Bool(path)
	return err == nil && b
}

// Duration reads an integer count of unit.
func (c *Config) Duration(path string, unit time.Duration) (time.Duration, error) {
	n, err := c.Int(path)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
}

// List splits a comma separated value, dropping empty items. A missing key
// yields nil.
func (c *Config) List(path string) []string {
	s, ok := c.values[path]
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func missing(path string) error {
	return liberrors.ConfigError(path, "missing required key "+path)
}

func invalid(path, msg string, cause error) error {
	return liberrors.NewError(liberrors.ErrTypeConfig, fmt.Sprintf("%s: %s", path, msg)).
		WithCause(cause).
		WithComponent("config").
		WithContext("field", path).
		WithSeverity(liberrors.SeverityCritical).
		Build()
}

// Overrides collects repeated -set key=value flags.
type Overrides []string

func (o *Overrides) String() string { return strings.Join(*o, " ") }

func (o *Overrides) Set(v string) error {
	*o = append(*o, v)
	return nil
}
