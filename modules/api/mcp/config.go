package mcp

const defaultServerName = "telegate"

// Config holds the MCP module configuration.
type Config struct {
	// ServerName identifies the bridge in the MCP initialize handshake.
	// Defaults to telegate.
	ServerName string `yaml:"server_name"`

	// AuthToken protects the MCP transport; clients send it as a bearer
	// token. Empty serves the transport unauthenticated, for loopback
	// deployments.
	AuthToken string `yaml:"auth_token"`
}

func (c *Config) defaults() {
	if c.ServerName == "" {
		c.ServerName = defaultServerName
	}
}
