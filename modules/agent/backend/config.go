package backend

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the agent backend client configuration.
type Config struct {
	// URL is the backend base URL, e.g. https://app.example.com.
	URL string `yaml:"url"`

	// Token authenticates the bridge to the backend (bearer auth on every
	// request, HTTP and WebSocket alike).
	Token string `yaml:"token"`

	// TurnTimeout caps one turn's event stream. The dispatcher carries its
	// own turn deadline; this one is the outer guard. Defaults to 10m.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// PingInterval is how often the client pings an open turn socket.
	// Defaults to 30s.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	c.URL = strings.TrimRight(c.URL, "/")
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 10 * time.Minute
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
}

// validate checks configuration field constraints. Called from
// Backend.Validate after defaults have been applied.
func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("backend: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend: url must be a valid http/https URL, got %q", c.URL)
	}

	if c.Token == "" {
		return fmt.Errorf("backend: token is required")
	}

	if c.TurnTimeout < 10*time.Second || c.TurnTimeout > 30*time.Minute {
		return fmt.Errorf("backend: turn_timeout must be 10s-30m, got %s", c.TurnTimeout)
	}

	if c.PingInterval < 5*time.Second || c.PingInterval > 5*time.Minute {
		return fmt.Errorf("backend: ping_interval must be 5s-5m, got %s", c.PingInterval)
	}

	return nil
}
