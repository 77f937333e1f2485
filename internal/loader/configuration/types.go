package configuration

import (
	"time"

	"github.com/flow-db/flowload/internal/loader/domain"
	"github.com/flow-db/flowload/pkg/api"
	"github.com/flow-db/flowload/pkg/client"
)

// LoadTestConfig holds every option of a load test run. Keys match the command line flags.
type LoadTestConfig struct {
	client.ApiConnectionDetails `mapstructure:",squash"`

	// Stream to configure and ingest into. Overrides the name given in SchemaFile.
	StreamName string `mapstructure:"streamName" validate:"required"`
	// YAML or JSON stream configuration. If empty, the built-in cars stream is used.
	SchemaFile string `mapstructure:"schemaFile"`

	TotalRecords   int `mapstructure:"totalRecords" validate:"gte=0"`
	BatchSize      int `mapstructure:"batchSize" validate:"min=1"`
	Passes         int `mapstructure:"passes" validate:"min=1"`
	MaxConcurrency int `mapstructure:"maxConcurrency" validate:"min=1"`

	MaxRetries      int           `mapstructure:"maxRetries" validate:"gte=0"`
	RetryBackoff    time.Duration `mapstructure:"retryBackoff" validate:"gte=0"`
	MaxRetryBackoff time.Duration `mapstructure:"maxRetryBackoff" validate:"gte=0"`

	Strategy domain.Strategy `mapstructure:"strategy" validate:"oneof=deterministic randomized"`
	// Seed of the randomized strategy, zero for a different sequence on every run
	Seed uint64 `mapstructure:"seed"`
	// Fixed field values, applied to every record
	Constants map[string]interface{} `mapstructure:"constants"`
	// Check every generated record against the full JSON schema before sending it
	ValidateRecords bool `mapstructure:"validateRecords"`
	// Probe the health endpoint before applying the configuration
	CheckHealth bool `mapstructure:"checkHealth"`

	// If set, the run result is written to this file as JSON
	Output string `mapstructure:"output"`
	// If set, the run is appended to this sqlite database
	HistoryDb string `mapstructure:"historyDb"`
	// If non-zero, Prometheus metrics are served on this port for the duration of the run
	MetricsPort uint16 `mapstructure:"metricsPort"`
}

const (
	DefaultTotalRecords    = 10000
	DefaultBatchSize       = 10000
	DefaultPasses          = 1
	DefaultMaxConcurrency  = 10
	DefaultMaxRetries      = 3
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultMaxRetryBackoff = 5 * time.Second
)

// Default returns the configuration used when no option is set.
func Default() LoadTestConfig {
	return LoadTestConfig{
		ApiConnectionDetails: client.ApiConnectionDetails{
			Url:            client.DefaultUrl,
			ApiPrefix:      client.DefaultApiPrefix,
			RequestTimeout: client.DefaultRequestTimeout,
		},
		StreamName:      api.DefaultStreamName,
		TotalRecords:    DefaultTotalRecords,
		BatchSize:       DefaultBatchSize,
		Passes:          DefaultPasses,
		MaxConcurrency:  DefaultMaxConcurrency,
		MaxRetries:      DefaultMaxRetries,
		RetryBackoff:    DefaultRetryBackoff,
		MaxRetryBackoff: DefaultMaxRetryBackoff,
		Strategy:        domain.Deterministic,
		CheckHealth:     true,
	}
}
