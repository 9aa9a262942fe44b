package config

import "time"

// Config represents the complete flowgate configuration.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Server       ServerConfig       `yaml:"server"`
	Signature    SignatureConfig    `yaml:"signature"`
	Flow         FlowConfig         `yaml:"flow"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Token        TokenConfig        `yaml:"token"`
	State        StateConfig        `yaml:"state"`
	Messaging    MessagingConfig    `yaml:"messaging"`
	Conversation ConversationConfig `yaml:"conversation"`
	Worker       WorkerConfig       `yaml:"worker"`
	Metrics      MetricsConfig      `yaml:"metrics"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Listen       string          `yaml:"listen"`
	BasePath     string          `yaml:"base_path"`
	MaxBodySize  string          `yaml:"max_body_size"`
	ReadTimeout  time.Duration   `yaml:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`

	// MaxBodyBytes is MaxBodySize parsed during Load.
	MaxBodyBytes int64 `yaml:"-"`
}

// RateLimitConfig is a per-client-IP token bucket. RPS 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// SignatureConfig controls inbound request signature checks.
type SignatureConfig struct {
	AppSecret string `yaml:"app_secret"`
	// AllowUnsigned accepts every request when AppSecret is empty.
	AllowUnsigned   *bool  `yaml:"allow_unsigned"`
	Header          string `yaml:"header"`
	RejectionStatus int    `yaml:"rejection_status"`
}

// AllowsUnsigned reports the effective allow_unsigned value (default true).
func (s SignatureConfig) AllowsUnsigned() bool {
	return s.AllowUnsigned == nil || *s.AllowUnsigned
}

// FlowConfig defines the encrypted data-exchange endpoint.
type FlowConfig struct {
	PrivateKey           string              `yaml:"private_key"`
	PrivateKeyPath       string              `yaml:"private_key_path"`
	Passphrase           string              `yaml:"passphrase"`
	DecryptFailureStatus int                 `yaml:"decrypt_failure_status"`
	CallingTimes         []CallingTimeConfig `yaml:"calling_times"`
	// DateWindowDays is how many days past today may be picked. 0 offers today only.
	DateWindowDays *int   `yaml:"date_window_days"`
	Timezone       string `yaml:"timezone"`
}

// DefaultDateWindowDays applies when date_window_days is not set.
const DefaultDateWindowDays = 1

// DateWindow reports the effective date_window_days value.
func (f FlowConfig) DateWindow() int {
	if f.DateWindowDays == nil {
		return DefaultDateWindowDays
	}
	return *f.DateWindowDays
}

// CallingTimeConfig is one option on the available_slots screen.
type CallingTimeConfig struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// WebhookConfig defines webhook verification.
type WebhookConfig struct {
	VerifyToken string `yaml:"verify_token"`
}

// TokenConfig defines correlation token signing.
type TokenConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	// VerifyOnLookup checks signature and expiry before a token is used as a lookup key.
	VerifyOnLookup *bool `yaml:"verify_on_lookup"`
}

// VerifiesOnLookup reports the effective verify_on_lookup value (default true).
func (t TokenConfig) VerifiesOnLookup() bool {
	return t.VerifyOnLookup == nil || *t.VerifyOnLookup
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path          string        `yaml:"path"`
	DedupeTTL     time.Duration `yaml:"dedupe_ttl"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// MessagingConfig defines the outbound messaging API client.
type MessagingConfig struct {
	BaseURL            string        `yaml:"base_url"`
	PhoneNumberID      string        `yaml:"phone_number_id"`
	AccessToken        string        `yaml:"access_token"`
	Timeout            time.Duration `yaml:"timeout"`
	RetryMaxElapsed    time.Duration `yaml:"retry_max_elapsed"`
	FlowMessageVersion string        `yaml:"flow_message_version"`
}

// ConversationConfig defines the replies sent to inbound messages.
type ConversationConfig struct {
	Welcome  WelcomeConfig  `yaml:"welcome"`
	ThankYou string         `yaml:"thank_you"`
	Buttons  []ButtonConfig `yaml:"buttons"`
	// CompletionTemplate replaces the thank_you text when set.
	CompletionTemplate *TemplateConfig `yaml:"completion_template"`
}

// TemplateFields are the record fields a completion template may reference.
var TemplateFields = []string{"phone_number", "trip_preference", "preferred_date", "preferred_time"}

// TemplateConfig is a pre-approved template sent when a flow completes.
// BodyParams name TemplateFields in positional order.
type TemplateConfig struct {
	Name       string   `yaml:"name"`
	Language   string   `yaml:"language"`
	BodyParams []string `yaml:"body_params"`
}

// ButtonByTitle returns the configured button with the given title.
func (c ConversationConfig) ButtonByTitle(title string) (ButtonConfig, bool) {
	for _, b := range c.Buttons {
		if b.Title == title {
			return b, true
		}
	}
	return ButtonConfig{}, false
}

// WelcomeConfig is the reply-button message sent for text messages.
type WelcomeConfig struct {
	Header string `yaml:"header"`
	Body   string `yaml:"body"`
	Footer string `yaml:"footer"`
}

// ButtonConfig is one welcome button. When Flow is set, tapping it launches that flow.
type ButtonConfig struct {
	Title string            `yaml:"title"`
	Flow  *FlowLaunchConfig `yaml:"flow,omitempty"`
}

// FlowLaunchConfig describes the flow message sent for a button.
type FlowLaunchConfig struct {
	ID     string         `yaml:"id"`
	Mode   string         `yaml:"mode"`
	Screen string         `yaml:"screen"`
	CTA    string         `yaml:"cta"`
	Body   string         `yaml:"body"`
	Footer string         `yaml:"footer"`
	Data   map[string]any `yaml:"data,omitempty"`
}

// WorkerConfig defines the background task pool.
type WorkerConfig struct {
	Size          int           `yaml:"size"`
	QueueSize     int           `yaml:"queue_size"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// MetricsConfig defines the prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// IsEnabled reports the effective enabled value (default true).
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ChecksumManifest is the .checksums file written by `flowgate config lock`.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "flowgate",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:       ":8080",
			BasePath:     "/",
			MaxBodySize:  "1MB",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Signature: SignatureConfig{
			Header:          "X-Hub-Signature-256",
			RejectionStatus: 432,
		},
		Flow: FlowConfig{
			DecryptFailureStatus: 421,
			Timezone:             "UTC",
			CallingTimes: []CallingTimeConfig{
				{ID: "10_12", Title: "10 AM - 12 PM"},
				{ID: "12_14", Title: "12 PM - 2 PM"},
				{ID: "14_16", Title: "2 PM - 4 PM"},
				{ID: "16_18", Title: "4 PM - 6 PM"},
			},
		},
		Token: TokenConfig{
			TTL: 30 * 24 * time.Hour,
		},
		State: StateConfig{
			Path:          "./data/state.db",
			DedupeTTL:     24 * time.Hour,
			PruneInterval: time.Hour,
		},
		Messaging: MessagingConfig{
			BaseURL:            "https://graph.facebook.com/v21.0/",
			Timeout:            10 * time.Second,
			RetryMaxElapsed:    15 * time.Second,
			FlowMessageVersion: "3",
		},
		Worker: WorkerConfig{
			Size:          4,
			QueueSize:     256,
			ShutdownGrace: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}
