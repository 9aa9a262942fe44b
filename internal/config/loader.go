package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates the configuration file.
// A directory argument loads config.yaml inside it. When a .checksums manifest
// sits next to the file, the file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

// Parse interpolates, defaults and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyConfigDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaults.Server.Listen
	}
	cfg.Server.BasePath = normalizeBasePath(cfg.Server.BasePath)
	if cfg.Server.MaxBodySize == "" {
		cfg.Server.MaxBodySize = defaults.Server.MaxBodySize
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaults.Server.WriteTimeout
	}
	if cfg.Server.RateLimit.RPS > 0 && cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = int(cfg.Server.RateLimit.RPS) + 1
	}

	if cfg.Signature.Header == "" {
		cfg.Signature.Header = defaults.Signature.Header
	}
	if cfg.Signature.RejectionStatus == 0 {
		cfg.Signature.RejectionStatus = defaults.Signature.RejectionStatus
	}

	if cfg.Flow.DecryptFailureStatus == 0 {
		cfg.Flow.DecryptFailureStatus = defaults.Flow.DecryptFailureStatus
	}
	if cfg.Flow.Timezone == "" {
		cfg.Flow.Timezone = defaults.Flow.Timezone
	}
	if len(cfg.Flow.CallingTimes) == 0 {
		cfg.Flow.CallingTimes = defaults.Flow.CallingTimes
	}

	if cfg.Token.TTL == 0 {
		cfg.Token.TTL = defaults.Token.TTL
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.State.DedupeTTL == 0 {
		cfg.State.DedupeTTL = defaults.State.DedupeTTL
	}
	if cfg.State.PruneInterval == 0 {
		cfg.State.PruneInterval = defaults.State.PruneInterval
	}

	if cfg.Messaging.BaseURL == "" {
		cfg.Messaging.BaseURL = defaults.Messaging.BaseURL
	}
	if cfg.Messaging.Timeout == 0 {
		cfg.Messaging.Timeout = defaults.Messaging.Timeout
	}
	if cfg.Messaging.RetryMaxElapsed == 0 {
		cfg.Messaging.RetryMaxElapsed = defaults.Messaging.RetryMaxElapsed
	}
	if cfg.Messaging.FlowMessageVersion == "" {
		cfg.Messaging.FlowMessageVersion = defaults.Messaging.FlowMessageVersion
	}

	if cfg.Worker.Size == 0 {
		cfg.Worker.Size = defaults.Worker.Size
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = defaults.Worker.QueueSize
	}
	if cfg.Worker.ShutdownGrace == 0 {
		cfg.Worker.ShutdownGrace = defaults.Worker.ShutdownGrace
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaults.Metrics.Path
	}
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}
