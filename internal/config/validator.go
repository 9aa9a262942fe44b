package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxBodySize is used when server.max_body_size is empty.
const DefaultMaxBodySize = 1 << 20

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	size, err := parseMaxBodySize(cfg.Server.MaxBodySize)
	if err != nil {
		return fmt.Errorf("server.max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}
	cfg.Server.MaxBodyBytes = size
	if cfg.Server.RateLimit.RPS < 0 || cfg.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit values must not be negative")
	}

	if err := checkStatus("signature.rejection_status", cfg.Signature.RejectionStatus); err != nil {
		return err
	}
	if err := checkStatus("flow.decrypt_failure_status", cfg.Flow.DecryptFailureStatus); err != nil {
		return err
	}

	// Secrets: an unresolved ${VAR} must never be used as key material.
	secrets := []struct{ field, value string }{
		{"signature.app_secret", cfg.Signature.AppSecret},
		{"flow.private_key", cfg.Flow.PrivateKey},
		{"flow.private_key_path", cfg.Flow.PrivateKeyPath},
		{"flow.passphrase", cfg.Flow.Passphrase},
		{"webhook.verify_token", cfg.Webhook.VerifyToken},
		{"token.secret", cfg.Token.Secret},
		{"messaging.phone_number_id", cfg.Messaging.PhoneNumberID},
		{"messaging.access_token", cfg.Messaging.AccessToken},
	}
	for _, s := range secrets {
		if err := checkUnresolved(s.field, s.value); err != nil {
			return err
		}
	}

	if cfg.Signature.AppSecret == "" && !cfg.Signature.AllowsUnsigned() {
		return fmt.Errorf("signature.app_secret is required when signature.allow_unsigned is false")
	}
	if cfg.Flow.PrivateKey == "" && cfg.Flow.PrivateKeyPath == "" {
		return fmt.Errorf("flow.private_key or flow.private_key_path is required")
	}
	if cfg.Flow.PrivateKey != "" && cfg.Flow.PrivateKeyPath != "" {
		return fmt.Errorf("flow.private_key and flow.private_key_path are mutually exclusive")
	}
	if cfg.Flow.DateWindow() < 0 {
		return fmt.Errorf("flow.date_window_days must not be negative")
	}
	if _, err := time.LoadLocation(cfg.Flow.Timezone); err != nil {
		return fmt.Errorf("flow.timezone %q: %w", cfg.Flow.Timezone, err)
	}
	for i, ct := range cfg.Flow.CallingTimes {
		if ct.ID == "" || ct.Title == "" {
			return fmt.Errorf("flow.calling_times[%d]: id and title are required", i)
		}
	}

	if cfg.Token.Secret == "" {
		return fmt.Errorf("token.secret is required")
	}
	if cfg.Token.TTL < 0 {
		return fmt.Errorf("token.ttl must be positive")
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if len(cfg.Conversation.Buttons) > 3 {
		return fmt.Errorf("conversation.buttons allows at most 3 buttons (got %d)", len(cfg.Conversation.Buttons))
	}
	seen := make(map[string]bool, len(cfg.Conversation.Buttons))
	for i, b := range cfg.Conversation.Buttons {
		if b.Title == "" {
			return fmt.Errorf("conversation.buttons[%d].title is required", i)
		}
		if len([]rune(b.Title)) > 20 {
			return fmt.Errorf("conversation.buttons[%d].title must be at most 20 characters", i)
		}
		if seen[b.Title] {
			return fmt.Errorf("conversation.buttons[%d].title %q is duplicated", i, b.Title)
		}
		seen[b.Title] = true
		if b.Flow != nil && (b.Flow.ID == "" || b.Flow.Screen == "") {
			return fmt.Errorf("conversation.buttons[%d].flow: id and screen are required", i)
		}
	}
	if tpl := cfg.Conversation.CompletionTemplate; tpl != nil {
		if tpl.Name == "" {
			return fmt.Errorf("conversation.completion_template.name is required")
		}
		for i, p := range tpl.BodyParams {
			if !slices.Contains(TemplateFields, p) {
				return fmt.Errorf("conversation.completion_template.body_params[%d]: unknown field %q (want one of %s)",
					i, p, strings.Join(TemplateFields, ", "))
			}
		}
	}
	if len(cfg.Conversation.Buttons) > 0 && (cfg.Messaging.PhoneNumberID == "" || cfg.Messaging.AccessToken == "") {
		return fmt.Errorf("messaging.phone_number_id and messaging.access_token are required when conversation.buttons are configured")
	}

	if cfg.Worker.Size < 1 {
		return fmt.Errorf("worker.size must be at least 1")
	}
	if cfg.Worker.QueueSize < 1 {
		return fmt.Errorf("worker.queue_size must be at least 1")
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

func checkStatus(field string, status int) error {
	if status < 400 || status > 599 {
		return fmt.Errorf("%s must be a 4xx or 5xx status (got %d)", field, status)
	}
	return nil
}

// checkUnresolved reports a ${VAR} placeholder left after interpolation.
func checkUnresolved(field, value string) error {
	if !envVarPattern.MatchString(value) {
		return nil
	}
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return fmt.Errorf("%s: unresolved environment variable", field)
}

// parseMaxBodySize parses size strings like "1MB", "512KB", "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
