package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/ruslaninoyatov1/calling/internal/callwindow"
)

const (
	PlacementBackendSpool = "spool"
	PlacementBackendARI   = "ari"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	CallWindowStart     string `env:"CALL_WINDOW_START,default=07:15"`
	CallWindowEnd       string `env:"CALL_WINDOW_END,default=21:59"`
	CallTimezone        string `env:"CALL_TIMEZONE,default=Asia/Tashkent"`
	PollIntervalSeconds int    `env:"POLL_INTERVAL_SECONDS,default=300"`
	ErrorBackoffSeconds int    `env:"ERROR_BACKOFF_SECONDS,default=60"`
	ScanBatchSize       int    `env:"SCAN_BATCH_SIZE,default=500"`

	PlacementBackend string `env:"PLACEMENT_BACKEND,default=spool"`
	SpoolDir         string `env:"SPOOL_DIR,default=/var/spool/asterisk/outgoing"`
	SpoolTempDir     string `env:"SPOOL_TEMP_DIR,default=temp_calls"`
	SoundsDir        string `env:"SOUNDS_DIR,default=/var/lib/asterisk/sounds/project-audio"`
	DefaultTrunk     string `env:"DEFAULT_TRUNK,default=skyline"`
	DialContext      string `env:"DIAL_CONTEXT,default=outgoing"`
	CallerIDName     string `env:"CALLER_ID_NAME,default=AutoCaller"`
	StaticNumber     string `env:"STATIC_NUMBER"`

	ARIURL      string `env:"ARI_URL"`
	ARIUser     string `env:"ARI_USER"`
	ARIPassword string `env:"ARI_PASSWORD"`
	ARIApp      string `env:"ARI_APP"`

	HTTPPort int    `env:"HTTP_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.CallWindow(); err != nil {
		return fmt.Errorf("invalid call window: %w", err)
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %d", c.PollIntervalSeconds)
	}
	if c.ErrorBackoffSeconds <= 0 {
		return fmt.Errorf("ERROR_BACKOFF_SECONDS must be positive, got %d", c.ErrorBackoffSeconds)
	}

	switch strings.ToLower(strings.TrimSpace(c.PlacementBackend)) {
	case PlacementBackendSpool:
	case PlacementBackendARI:
		if strings.TrimSpace(c.ARIURL) == "" {
			return fmt.Errorf("ARI_URL is required when PLACEMENT_BACKEND=%s", PlacementBackendARI)
		}
	default:
		return fmt.Errorf("unknown PLACEMENT_BACKEND %q", c.PlacementBackend)
	}

	return nil
}

// CallWindow parses the configured dispatch window.
func (c *Config) CallWindow() (callwindow.Window, error) {
	return callwindow.New(c.CallWindowStart, c.CallWindowEnd, c.CallTimezone)
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffSeconds) * time.Second
}

func (c *Config) Backend() string {
	return strings.ToLower(strings.TrimSpace(c.PlacementBackend))
}
