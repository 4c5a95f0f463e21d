// Package config provides configuration loading for the hapticlink daemon.
//
// # Core Components
//
// Config: the daemon configuration: the active provider and its settings,
// throttle overrides, the HTTP gateway, the Prometheus endpoint and the
// optional NATS bridge.
//
// SafeConfig: Thread-safe wrapper using RWMutex and deep cloning, used to
// swap configuration on reload.
//
// Loader: Loads configuration with layer merging (defaults + files) and
// environment variable overrides.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("hapticlink.yaml")
//	loader.AddLayer("hapticlink.local.json") // Overrides the first layer
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # File Formats
//
// Layers ending in .yaml or .yml are parsed with gopkg.in/yaml.v3, anything
// else as JSON. Durations are strings in time.ParseDuration syntax
// ("150ms", "2s"). Each layer is checked against the embedded JSON schema
// before merging, then the merged result is checked by Config.Validate.
//
// # Environment Variable Overrides
//
//	export HAPTICLINK_PROVIDER_MODE=buttplug
//	export HAPTICLINK_PROVIDER_URL=ws://192.168.1.20:12345
//	export HAPTICLINK_HTTP_PORT=8090
//	export HAPTICLINK_NATS_URL=nats://broker:4222
//	export HAPTICLINK_NATS_ENABLED=true
//
// # Layer Merging
//
// Configuration layers are merged with last-wins semantics:
//
//	base.json:
//	  {"provider": {"mode": "lovense-local", "timeout": "5s"}}
//
//	override.json:
//	  {"provider": {"mode": "lovense-remote"}}
//
//	Result:
//	  {"provider": {"mode": "lovense-remote", "timeout": "5s"}}
//
// # Security
//
// The package includes security validation:
//   - File size limits (10MB max) to prevent memory exhaustion
//   - JSON depth validation (100 levels max) to prevent DoS attacks
//   - Path validation to prevent directory traversal
//   - Regular file checks (no symlinks or device files)
package config
