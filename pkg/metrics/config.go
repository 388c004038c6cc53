package metrics

// Config holds configuration for the Prometheus provider
type Config struct {
	// Namespace is an optional prefix for all metric names
	Namespace string `mapstructure:"namespace"`

	// HTTPRequestBuckets are the histogram buckets for inbound request duration (seconds)
	HTTPRequestBuckets []float64 `mapstructure:"http_request_buckets"`

	// StrapiRequestBuckets are the histogram buckets for outbound Strapi calls (seconds)
	StrapiRequestBuckets []float64 `mapstructure:"strapi_request_buckets"`

	// QueryLengthBuckets are the histogram buckets for compiled query string length (bytes)
	QueryLengthBuckets []float64 `mapstructure:"query_length_buckets"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	c := &Config{Namespace: "strapispec"}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in any missing values with defaults
func (c *Config) ApplyDefaults() {
	if len(c.HTTPRequestBuckets) == 0 {
		c.HTTPRequestBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}
	// Strapi round trips include populate joins and are slower than local handlers
	if len(c.StrapiRequestBuckets) == 0 {
		c.StrapiRequestBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	}
	if len(c.QueryLengthBuckets) == 0 {
		c.QueryLengthBuckets = []float64{0, 64, 256, 512, 1024, 2048, 4096, 8192}
	}
}
