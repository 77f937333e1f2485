package configapplier

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/flow-db/flowload/internal/common/flowcontext"
	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/pkg/api"
	"github.com/flow-db/flowload/pkg/client"
)

// ConfigurationClient is the part of client.Client needed to configure a stream.
type ConfigurationClient interface {
	Health(ctx context.Context) error
	ApplyConfiguration(ctx context.Context, command api.ConfigurationCommand) error
	GetSchema(ctx context.Context, stream string) (api.Schema, error)
}

// Applier pushes a stream configuration to the service and checks that the service reports it back unchanged.
type Applier struct {
	client      ConfigurationClient
	checkHealth bool
}

func NewApplier(client ConfigurationClient, checkHealth bool) *Applier {
	return &Applier{client: client, checkHealth: checkHealth}
}

// Apply returns nil only once the service has accepted the configuration and reports the same schema.
// Every other outcome is an *flowerrors.ErrConfigurationRejected, except an invalid schema which is
// an *flowerrors.ErrInvalidArgument and is detected before any request is sent.
func (a *Applier) Apply(ctx *flowcontext.Context, stream api.StreamConfiguration) error {
	if stream.Name == "" {
		return errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "streamName", Value: stream.Name, Message: "must not be empty"})
	}
	if err := stream.Schema.Validate(); err != nil {
		return errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "schema", Value: stream.Name, Message: err.Error()})
	}
	log := ctx.Log.WithField("stream", stream.Name)

	if a.checkHealth {
		if err := a.client.Health(ctx); err != nil {
			return rejected(stream.Name, "service is not healthy", err)
		}
	}

	command := api.ConfigurationCommand{DataStreams: []api.StreamConfiguration{stream}}
	if err := a.client.ApplyConfiguration(ctx, command); err != nil {
		return rejected(stream.Name, "applying configuration", err)
	}
	log.Debug("configuration accepted, verifying schema")

	reported, err := a.client.GetSchema(ctx, stream.Name)
	if err != nil {
		return rejected(stream.Name, "reading back schema", err)
	}
	if differences := Compare(stream.Schema, reported); len(differences) > 0 {
		return errors.WithStack(&flowerrors.ErrConfigurationRejected{
			Stream:  stream.Name,
			Message: "service reports a different schema: " + strings.Join(differences, ", "),
		})
	}
	log.Infof("configured stream with fields %s", strings.Join(stream.Schema.FieldNames(), ", "))
	return nil
}

// Compare lists the properties whose presence or type differs between the applied and reported schema.
// Constraints other than type are not compared, since services may normalise them.
func Compare(applied api.Schema, reported api.Schema) []string {
	names := maps.Keys(applied.Properties)
	for name := range reported.Properties {
		if _, ok := applied.Properties[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	var differences []string
	for _, name := range names {
		want, applies := applied.Properties[name]
		got, reports := reported.Properties[name]
		switch {
		case !reports:
			differences = append(differences, fmt.Sprintf("%s is missing", name))
		case !applies:
			differences = append(differences, fmt.Sprintf("%s is unexpected", name))
		case want.Type != got.Type:
			differences = append(differences, fmt.Sprintf("%s has type %q, want %q", name, got.Type, want.Type))
		}
	}
	return differences
}

func rejected(stream string, action string, err error) error {
	result := &flowerrors.ErrConfigurationRejected{
		Stream:  stream,
		Message: fmt.Sprintf("%s: %s", action, errors.Cause(err)),
	}
	var respErr *client.ResponseError
	if errors.As(err, &respErr) {
		result.StatusCode = respErr.StatusCode
	}
	return errors.WithStack(result)
}
