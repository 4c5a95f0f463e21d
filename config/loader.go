package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/hapticlink/errors"
)

// durationKeys lists the duration fields accepted as strings such as "150ms"
var durationKeys = map[string][]string{
	"provider": {"timeout", "scan_window", "toast_duration"},
	"throttle": {"min_interval", "continuous_threshold", "repeat_window"},
	"nats":     {"reconnect_wait"},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  "HAPTICLINK",
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables schema and semantic validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment override prefix
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers over the defaults, then
// applies environment overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read "+filepath.Base(path))
		}
		if l.validation {
			if err := validateSchema(raw); err != nil {
				return nil, errors.WrapFatal(err, "config", "Load", "validate "+filepath.Base(path))
			}
		}
		if err := parseDurations(raw); err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "parse durations in "+filepath.Base(path))
		}
		if cfg, err = l.mergeFromMap(cfg, raw); err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "merge "+filepath.Base(path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "apply environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRaw reads a JSON or YAML file into a map, by extension
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateDepth(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return raw, nil
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) error {
	for section, keys := range durationKeys {
		m, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", section, key, err)
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidData, err)
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

// envOverrides lists the variables read by applyEnvOverrides, without prefix
var envOverrides = []string{
	"PROVIDER_MODE", "PROVIDER_URL", "HTTP_PORT", "NATS_URL", "NATS_ENABLED", "NATS_TOKEN",
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := make(map[string]string)
	for _, name := range envOverrides {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		if val != "" {
			env[name] = val
		}
	}

	if val, ok := env["PROVIDER_MODE"]; ok {
		cfg.Provider.Mode = val
	}
	if val, ok := env["PROVIDER_URL"]; ok {
		cfg.Provider.URL = val
	}
	if val, ok := env["HTTP_PORT"]; ok {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s_HTTP_PORT=%q", errors.ErrInvalidConfig, l.envPrefix, val)
		}
		cfg.HTTP.Port = port
	}
	if val, ok := env["NATS_URL"]; ok {
		cfg.NATS.URL = val
	}
	if val, ok := env["NATS_ENABLED"]; ok {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %s_NATS_ENABLED=%q", errors.ErrInvalidConfig, l.envPrefix, val)
		}
		cfg.NATS.Enabled = enabled
	}
	if val, ok := env["NATS_TOKEN"]; ok {
		cfg.NATS.Token = val
	}

	return nil
}

// SaveToFile saves the configuration to a JSON or YAML file, by extension
func (c *Config) SaveToFile(path string) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	formatDurations(m)

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(m)
	default:
		data, err = json.MarshalIndent(m, "", "  ")
	}
	if err != nil {
		return err
	}

	return safeWriteFile(path, data)
}

// formatDurations is the inverse of parseDurations
func formatDurations(data map[string]any) {
	for section, keys := range durationKeys {
		m, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			if ns, ok := m[key].(float64); ok {
				m[key] = time.Duration(ns).String()
			}
		}
	}
}
