// Package config loads the gate monitor configuration from an optional YAML
// file, with environment fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "3s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Supervisor is one dashboard account allowed to use the manual controls.
type Supervisor struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// AuthConfig configures supervisor login for the control endpoints.
type AuthConfig struct {
	JWTSecret   string       `yaml:"jwt_secret"`
	TokenTTL    Duration     `yaml:"token_ttl"`
	Supervisors []Supervisor `yaml:"supervisors"`
}

// RelayConfig configures the gate relay pin.
type RelayConfig struct {
	GPIOPin  int    `yaml:"gpio_pin"`
	SysfsDir string `yaml:"sysfs_dir"`
	Simulate bool   `yaml:"simulate"`
}

// Config defines the runtime configuration for the gate monitor.
type Config struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	CameraURL     string   `yaml:"camera_url"`
	InferenceURL  string   `yaml:"inference_url"`
	Confidence    float64  `yaml:"confidence"`
	PollInterval  Duration `yaml:"poll_interval"`
	CameraRetry   Duration `yaml:"camera_retry"`
	MJPEGInterval Duration `yaml:"mjpeg_interval"`

	EventLogCapacity int    `yaml:"event_log_capacity"`
	EventLogFile     string `yaml:"event_log_file"`

	ViolationsDir     string   `yaml:"violations_dir"`
	RetentionMaxAge   Duration `yaml:"retention_max_age"`
	RetentionMaxFiles int      `yaml:"retention_max_files"`

	Relay RelayConfig `yaml:"relay"`
	Auth  AuthConfig  `yaml:"auth"`
}

// DefaultConfig returns a config aligned with the reference dashboard
// behavior (status polled every 3s, events every 5s).
func DefaultConfig() Config {
	return Config{
		Addr:              ":5000",
		MetricsAddr:       ":9090",
		CameraURL:         "http://localhost:8554/stream",
		InferenceURL:      "http://localhost:8500/predict",
		Confidence:        0.6,
		PollInterval:      Duration(time.Second),
		CameraRetry:       Duration(10 * time.Second),
		MJPEGInterval:     Duration(100 * time.Millisecond),
		EventLogCapacity:  200,
		ViolationsDir:     "./violations",
		RetentionMaxAge:   Duration(30 * 24 * time.Hour),
		RetentionMaxFiles: 500,
		Relay: RelayConfig{
			GPIOPin:  17,
			SysfsDir: "/sys/class/gpio",
			Simulate: false,
		},
		Auth: AuthConfig{
			TokenTTL: Duration(8 * time.Hour),
		},
	}
}

// Load reads the config file at path on top of the defaults. An empty path
// returns the defaults. PPE_JWT_SECRET overrides the configured JWT secret
// so it can stay out of the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if secret := os.Getenv("PPE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.EventLogCapacity <= 0 {
		return fmt.Errorf("event_log_capacity must be positive, got %d", c.EventLogCapacity)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %v", c.Confidence)
	}
	return nil
}
