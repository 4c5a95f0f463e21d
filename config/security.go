package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// Limits applied to configuration input
const (
	maxConfigSize  = 1 << 20
	maxConfigDepth = 32
	maxEnvVarLen   = 4096
	maxPathLen     = 4096
)

var configExtensions = []string{".json", ".yaml", ".yml"}

// validateConfigPath rejects paths with parent references and files that
// are neither JSON nor YAML
func validateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
	}
	if !slices.Contains(configExtensions, strings.ToLower(filepath.Ext(path))) {
		return fmt.Errorf("only JSON or YAML config files allowed: %s", path)
	}
	return nil
}

// safeReadFile reads a regular, size-limited config file
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}

	return os.ReadFile(path)
}

// safeWriteFile writes a config file readable only by its owner
func safeWriteFile(path string, data []byte) error {
	if err := validateConfigPath(path); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("config data too large: %d bytes > %d", len(data), maxConfigSize)
	}
	return os.WriteFile(path, data, 0o600)
}

// validateEnvVar rejects oversized values and control characters
func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if i := strings.IndexFunc(value, unicode.IsControl); i >= 0 {
		return fmt.Errorf("control character at offset %d in environment variable %s", i, key)
	}
	return nil
}

// validateDepth bounds the nesting of a decoded JSON or YAML document
func validateDepth(v any) error {
	return walkDepth(v, 1)
}

func walkDepth(v any, depth int) error {
	if depth > maxConfigDepth {
		return fmt.Errorf("config nesting too deep: > %d", maxConfigDepth)
	}
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if err := walkDepth(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := walkDepth(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
