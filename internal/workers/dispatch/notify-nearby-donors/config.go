// internal/workers/dispatch/notify-nearby-donors/config.go
package notifynearbydonors

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}
