package generator

import (
	"github.com/pkg/errors"

	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/internal/loader/domain"
	"github.com/flow-db/flowload/pkg/api"
)

// Generator materialises the records of one batch.
// Implementations are synchronous and must not perform I/O.
type Generator interface {
	// Generate returns exactly r.Len() records, in index order.
	Generate(r domain.Range, pass int) ([]api.Record, error)
}

type Config struct {
	Stream   api.StreamConfiguration
	Strategy domain.Strategy
	// Values used verbatim for the named fields, in every record
	Constants map[string]interface{}
	// Supplies values for the randomized strategy
	Provider ValueProvider
	// Also validate each record against the full JSON schema, not just its field names
	Strict bool
}

// New returns the generator for the configured strategy. The returned generator fails with
// ErrSchemaViolation on any record whose fields aren't declared by the stream schema.
func New(config Config) (Generator, error) {
	if err := config.Stream.Schema.Validate(); err != nil {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "schema", Value: config.Stream.Name, Message: err.Error()})
	}

	var inner Generator
	switch config.Strategy {
	case domain.Deterministic, "":
		inner = NewDeterministic(config.Stream.Schema, config.Constants)
	case domain.Randomized:
		if config.Provider == nil {
			return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "provider", Value: nil, Message: "randomized strategy needs a value provider"})
		}
		inner = NewRandomized(config.Stream.Schema, config.Constants, config.Provider)
	default:
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{
			Name:    "strategy",
			Value:   config.Strategy,
			Message: "must be deterministic or randomized",
		})
	}

	checked := &SchemaChecked{stream: config.Stream, inner: inner}
	if config.Strict {
		validator, err := NewJsonSchemaValidator(config.Stream.Schema)
		if err != nil {
			return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "schema", Value: config.Stream.Name, Message: err.Error()})
		}
		checked.validator = validator
	}
	return checked, nil
}

// SchemaChecked wraps a generator and checks every record it produces against the stream schema.
type SchemaChecked struct {
	stream    api.StreamConfiguration
	inner     Generator
	validator *JsonSchemaValidator
}

func (g *SchemaChecked) Generate(r domain.Range, pass int) ([]api.Record, error) {
	records, err := g.inner.Generate(r, pass)
	if err != nil {
		return nil, err
	}
	if len(records) != r.Len() {
		return nil, errors.Errorf("generator returned %d records for range %s", len(records), r)
	}
	for i, record := range records {
		for field := range record {
			if _, ok := g.stream.Schema.Properties[field]; !ok {
				return nil, errors.WithStack(&flowerrors.ErrSchemaViolation{
					Stream:      g.stream.Name,
					RecordIndex: r.Start + i,
					Field:       field,
					Message:     "field is not declared by the schema",
				})
			}
		}
		if g.validator != nil {
			if err := g.validator.Validate(record); err != nil {
				return nil, errors.WithStack(&flowerrors.ErrSchemaViolation{
					Stream:      g.stream.Name,
					RecordIndex: r.Start + i,
					Message:     err.Error(),
				})
			}
		}
	}
	return records, nil
}
