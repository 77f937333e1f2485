package configuration

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/flow-db/flowload/internal/common/config"
	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/internal/loader/scheduling"
	"github.com/flow-db/flowload/pkg/api"
)

// Field used for every record of the built-in cars stream, as in the original load tests.
var defaultCarsConstants = map[string]interface{}{"type": "cars"}

// Load decodes the run options held by v. The result isn't validated.
func Load(v *viper.Viper) (LoadTestConfig, error) {
	c := Default()
	if err := v.Unmarshal(&c, config.CustomHooks...); err != nil {
		return c, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "configuration", Value: v.ConfigFileUsed(), Message: err.Error()})
	}
	return c, nil
}

// Validate returns every invalid option at once, as *flowerrors.ErrInvalidArgument values combined in a *multierror.Error.
func (c LoadTestConfig) Validate() error {
	var result *multierror.Error
	if err := config.Validate(c); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.ApiConnectionDetails.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.MaxRetryBackoff > 0 && c.MaxRetryBackoff < c.RetryBackoff {
		result = multierror.Append(result, errors.WithStack(&flowerrors.ErrInvalidArgument{
			Name:    "maxRetryBackoff",
			Value:   c.MaxRetryBackoff,
			Message: "must not be less than retryBackoff",
		}))
	}
	return result.ErrorOrNil()
}

// StreamConfiguration returns the stream to configure: the contents of SchemaFile if set, otherwise the
// built-in cars stream. StreamName always names the stream.
func (c LoadTestConfig) StreamConfiguration() (api.StreamConfiguration, error) {
	stream := api.DefaultStreamConfiguration()
	if c.SchemaFile != "" {
		loaded, err := api.LoadStreamConfiguration(c.SchemaFile)
		if err != nil {
			return stream, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "schemaFile", Value: c.SchemaFile, Message: err.Error()})
		}
		stream = loaded
	}
	if c.StreamName != "" {
		stream.Name = c.StreamName
	}
	return stream, nil
}

// RecordConstants returns the fixed field values of every record. The built-in stream defaults to type "cars".
func (c LoadTestConfig) RecordConstants() map[string]interface{} {
	if len(c.Constants) > 0 {
		return c.Constants
	}
	if c.SchemaFile == "" {
		return defaultCarsConstants
	}
	return nil
}

func (c LoadTestConfig) ControllerConfig() scheduling.Config {
	return scheduling.Config{
		MaxConcurrency:  c.MaxConcurrency,
		MaxRetries:      c.MaxRetries,
		RetryBackoff:    c.RetryBackoff,
		MaxRetryBackoff: c.MaxRetryBackoff,
	}
}
