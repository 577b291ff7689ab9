// internal/workers/notification/deliver-notification/config.go
package delivernotification

import (
	"strings"
	"time"

	"donor-dispatch/internal/common/config"
)

type Config struct {
	Timeout      time.Duration
	EmailEnabled bool
	SMSEnabled   bool
	BaseURL      string
}

func LoadConfig(cfg config.NotificationConfig, baseURL string) *Config {
	return &Config{
		Timeout:      30 * time.Second,
		EmailEnabled: cfg.EmailEnabled,
		SMSEnabled:   cfg.SMSEnabled,
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
	}
}
