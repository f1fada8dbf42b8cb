package tracing

import "fmt"

const (
	defaultEndpoint    = "localhost:4318"
	defaultServiceName = "telegate"
)

// Config holds the tracing module configuration.
type Config struct {
	// Endpoint is the OTLP/HTTP collector endpoint as host:port.
	// Defaults to localhost:4318.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of new traces recorded, between 0 and 1.
	// Zero or absent selects full sampling.
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName overrides the service.name resource attribute.
	// Defaults to telegate.
	ServiceName string `yaml:"service_name"`

	// Headers are sent with every export request, for collectors that
	// expect an auth token.
	Headers map[string]string `yaml:"headers"`
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
}

func (c *Config) validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("tracing: sample_ratio must be between 0 and 1, got %v", c.SampleRatio)
	}
	return nil
}
