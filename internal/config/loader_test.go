package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
flow:
  private_key_path: ./keys/private.pem
token:
  secret: s3cret
`

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config gets defaults",
			yaml: minimalYAML,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Server.Listen != ":8080" {
					t.Errorf("server.listen = %q", cfg.Server.Listen)
				}
				if cfg.Server.BasePath != "/" {
					t.Errorf("server.base_path = %q", cfg.Server.BasePath)
				}
				if cfg.Server.MaxBodyBytes != 1<<20 {
					t.Errorf("max body bytes = %d", cfg.Server.MaxBodyBytes)
				}
				if cfg.Signature.RejectionStatus != 432 {
					t.Errorf("rejection_status = %d", cfg.Signature.RejectionStatus)
				}
				if !cfg.Signature.AllowsUnsigned() {
					t.Error("allow_unsigned should default to true")
				}
				if cfg.Signature.Header != "X-Hub-Signature-256" {
					t.Errorf("signature.header = %q", cfg.Signature.Header)
				}
				if cfg.Flow.DecryptFailureStatus != 421 {
					t.Errorf("decrypt_failure_status = %d", cfg.Flow.DecryptFailureStatus)
				}
				if len(cfg.Flow.CallingTimes) == 0 {
					t.Error("default calling times not applied")
				}
				if cfg.Flow.DateWindow() != 1 {
					t.Errorf("date window = %d, want 1", cfg.Flow.DateWindow())
				}
				if cfg.Token.TTL != 30*24*time.Hour {
					t.Errorf("token.ttl = %v", cfg.Token.TTL)
				}
				if !cfg.Token.VerifiesOnLookup() {
					t.Error("verify_on_lookup should default to true")
				}
				if cfg.State.DedupeTTL != 24*time.Hour {
					t.Errorf("state.dedupe_ttl = %v", cfg.State.DedupeTTL)
				}
				if cfg.Worker.Size != 4 || cfg.Worker.QueueSize != 256 {
					t.Errorf("worker = %+v", cfg.Worker)
				}
				if !cfg.Metrics.IsEnabled() || cfg.Metrics.Path != "/metrics" {
					t.Errorf("metrics = %+v", cfg.Metrics)
				}
				if cfg.SourcePath == "" {
					t.Error("source path not recorded")
				}
			},
		},
		{
			name: "zero date window is kept",
			yaml: `
flow:
  private_key_path: ./keys/private.pem
  date_window_days: 0
token:
  secret: s3cret
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Flow.DateWindowDays == nil {
					t.Fatal("date_window_days: 0 was dropped")
				}
				if cfg.Flow.DateWindow() != 0 {
					t.Errorf("date window = %d, want 0", cfg.Flow.DateWindow())
				}
			},
		},
		{
			name: "negative date window rejected",
			yaml: `
flow:
  private_key_path: ./keys/private.pem
  date_window_days: -1
token:
  secret: s3cret
`,
			wantErr: "date_window_days",
		},
		{
			name: "env var interpolation",
			yaml: `
service:
  log_level: DEBUG
  log_format: text
server:
  base_path: /flows/
  max_body_size: 512KB
signature:
  app_secret: ${FG_APP_SECRET}
  allow_unsigned: false
flow:
  private_key_path: ${FG_KEY_PATH}
token:
  secret: ${FG_TOKEN_SECRET}
  verify_on_lookup: false
`,
			env: map[string]string{
				"FG_APP_SECRET":   "app",
				"FG_KEY_PATH":     "/etc/flowgate/private.pem",
				"FG_TOKEN_SECRET": "tok",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Signature.AppSecret != "app" {
					t.Errorf("app_secret = %q", cfg.Signature.AppSecret)
				}
				if cfg.Flow.PrivateKeyPath != "/etc/flowgate/private.pem" {
					t.Errorf("private_key_path = %q", cfg.Flow.PrivateKeyPath)
				}
				if cfg.Service.LogLevel != "debug" {
					t.Errorf("log_level = %q", cfg.Service.LogLevel)
				}
				if cfg.Server.BasePath != "/flows" {
					t.Errorf("base_path = %q", cfg.Server.BasePath)
				}
				if cfg.Server.MaxBodyBytes != 512*1024 {
					t.Errorf("max body bytes = %d", cfg.Server.MaxBodyBytes)
				}
				if cfg.Signature.AllowsUnsigned() {
					t.Error("allow_unsigned should be false")
				}
				if cfg.Token.VerifiesOnLookup() {
					t.Error("verify_on_lookup should be false")
				}
			},
		},
		{
			name: "unresolved secret names the variable",
			yaml: `
flow:
  private_key_path: ./k.pem
token:
  secret: ${FG_MISSING_SECRET}
`,
			wantErr: "${FG_MISSING_SECRET} is not set",
		},
		{
			name:    "token secret required",
			yaml:    "flow:\n  private_key_path: ./k.pem\n",
			wantErr: "token.secret is required",
		},
		{
			name:    "private key required",
			yaml:    "token:\n  secret: s\n",
			wantErr: "flow.private_key or flow.private_key_path is required",
		},
		{
			name: "private key sources are exclusive",
			yaml: `
flow:
  private_key: inline
  private_key_path: ./k.pem
token:
  secret: s
`,
			wantErr: "mutually exclusive",
		},
		{
			name:    "unsigned disallowed without secret",
			yaml:    minimalYAML + "signature:\n  allow_unsigned: false\n",
			wantErr: "signature.app_secret is required",
		},
		{
			name: "completion template field must be known",
			yaml: minimalYAML + `
conversation:
  completion_template:
    name: callback_booked
    body_params: [preferred_date, favourite_colour]
`,
			wantErr: `unknown field "favourite_colour"`,
		},
		{
			name:    "completion template needs a name",
			yaml:    minimalYAML + "conversation:\n  completion_template:\n    body_params: [preferred_date]\n",
			wantErr: "conversation.completion_template.name is required",
		},
		{
			name: "completion template accepted",
			yaml: minimalYAML + `
conversation:
  completion_template:
    name: callback_booked
    language: en_US
    body_params: [phone_number, preferred_date, preferred_time]
`,
			checkFn: func(t *testing.T, cfg *Config) {
				tpl := cfg.Conversation.CompletionTemplate
				if tpl == nil || tpl.Name != "callback_booked" || len(tpl.BodyParams) != 3 {
					t.Errorf("completion_template = %+v", tpl)
				}
			},
		},
		{
			name:    "invalid log level",
			yaml:    minimalYAML + "service:\n  log_level: verbose\n",
			wantErr: "service.log_level",
		},
		{
			name:    "invalid status",
			yaml:    minimalYAML + "signature:\n  rejection_status: 200\n",
			wantErr: "signature.rejection_status",
		},
		{
			name:    "invalid body size",
			yaml:    minimalYAML + "server:\n  max_body_size: lots\n",
			wantErr: "server.max_body_size",
		},
		{
			name: "too many buttons",
			yaml: minimalYAML + `
messaging:
  phone_number_id: "1"
  access_token: t
conversation:
  buttons:
    - title: a
    - title: b
    - title: c
    - title: d
`,
			wantErr: "at most 3 buttons",
		},
		{
			name: "buttons need messaging credentials",
			yaml: minimalYAML + `
conversation:
  buttons:
    - title: Customize Trip
`,
			wantErr: "messaging.phone_number_id and messaging.access_token are required",
		},
		{
			name: "button flow needs id and screen",
			yaml: minimalYAML + `
messaging:
  phone_number_id: "1"
  access_token: t
conversation:
  buttons:
    - title: Customize Trip
      flow:
        id: "123"
`,
			wantErr: "id and screen are required",
		},
		{
			name: "full conversation config",
			yaml: minimalYAML + `
messaging:
  phone_number_id: "1"
  access_token: t
conversation:
  welcome:
    header: Welcome
    body: Pick one
  thank_you: Thanks
  buttons:
    - title: Customize Trip
      flow:
        id: "123"
        screen: user_details
        cta: Customize Your Trip
        data:
          location: [Goa, Leh]
    - title: Community Trip
`,
			checkFn: func(t *testing.T, cfg *Config) {
				b, ok := cfg.Conversation.ButtonByTitle("Customize Trip")
				if !ok || b.Flow == nil || b.Flow.Screen != "user_details" {
					t.Fatalf("button lookup = %+v, %v", b, ok)
				}
				if _, ok := cfg.Conversation.ButtonByTitle("Nope"); ok {
					t.Error("unexpected button match")
				}
				locs, _ := b.Flow.Data["location"].([]any)
				if len(locs) != 2 {
					t.Errorf("flow data = %v", b.Flow.Data)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir): %v", err)
	}
	if cfg.SourcePath != filepath.Join(dir, "config.yaml") {
		t.Errorf("SourcePath = %q", cfg.SourcePath)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", DefaultMaxBodySize, false},
		{"1048576", 1 << 20, false},
		{"64kb", 64 << 10, false},
		{" 2MB ", 2 << 20, false},
		{"1GB", 1 << 30, false},
		{"0", 0, true},
		{"-1KB", 0, true},
		{"MB", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMaxBodySize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseMaxBodySize(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseMaxBodySize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":        "/",
		"/":       "/",
		"flows":   "/flows",
		"/flows/": "/flows",
		"/a/b":    "/a/b",
	} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
