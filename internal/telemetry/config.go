// Package telemetry provides OpenTelemetry instrumentation for the
// connector: OTLP-exported traces and metrics, HTTP middleware for the
// webhook server, and nil-safe instrument bundles for the sync,
// reconciliation, and operation-polling domains.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName identifies the connector in exported telemetry.
	DefaultServiceName = "slk-connector"

	// DefaultEndpoint is the conventional local OTLP HTTP port.
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling keeps one trace in twenty. Lifecycle deliveries are
	// frequent and repetitive; full sampling is for development only.
	DefaultSampling = 0.05
)

// Config is the telemetry section of the service configuration. Everything
// is off unless Enabled is set; the per-signal sections gate tracing and
// metrics independently below that.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName overrides the service identity on exported data.
	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion overrides the reported version; unset means the
	// build's version is not attached.
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP collector as host:port. The exporter appends
	// the /v1/traces and /v1/metrics paths itself.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure switches the exporters to plain HTTP.
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig gates tracing and sets its sampling rate.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the trace sampling ratio in (0, 1]. Zero means the
	// default rate.
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig gates metrics collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GetServiceName returns the service name, using the default if unset.
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the service version, using "unknown" if unset.
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

// GetEndpoint returns the collector endpoint, using the default if unset.
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetInsecure returns the insecure flag.
func (c *Config) GetInsecure() bool {
	return c.Insecure
}

// GetSampling returns the sampling ratio, treating zero as unset. YAML
// cannot distinguish an absent value from an explicit 0, so "sample
// nothing" is expressed by disabling tracing instead.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// Validate checks the telemetry configuration. Disabled sections are not
// inspected, so a config can carry a half-written tracing block while
// telemetry is off.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error

	if c.Tracing != nil {
		if err := c.Tracing.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the tracing configuration.
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	if c.Sampling < 0 || c.Sampling > 1.0 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}

	return nil
}

// Validate checks the metrics configuration.
func (c *MetricsConfig) Validate() error {
	return nil
}
