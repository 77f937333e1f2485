package generator

import (
	"github.com/flow-db/flowload/internal/loader/domain"
	"github.com/flow-db/flowload/pkg/api"
)

// Bounds used for numeric fields the schema leaves unbounded.
const (
	defaultRandomMin = 0
	defaultRandomMax = 1_000_000
)

// ValueProvider supplies field values for the randomized strategy.
// Fields are always requested in sorted name order, so a seeded provider yields reproducible records.
type ValueProvider interface {
	String(field string) string
	Int(field string, min int, max int) int
	Float(field string, min float64, max float64) float64
	Bool(field string) bool
	Choice(field string, options []interface{}) interface{}
}

// Randomized draws every field from a ValueProvider.
type Randomized struct {
	schema    api.Schema
	fields    []string
	constants map[string]interface{}
	provider  ValueProvider
}

func NewRandomized(schema api.Schema, constants map[string]interface{}, provider ValueProvider) *Randomized {
	return &Randomized{
		schema:    schema,
		fields:    schema.FieldNames(),
		constants: constants,
		provider:  provider,
	}
}

func (g *Randomized) Generate(r domain.Range, _ int) ([]api.Record, error) {
	records := make([]api.Record, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		record := make(api.Record, len(g.fields))
		for _, field := range g.fields {
			if value, ok := g.constants[field]; ok {
				record[field] = value
				continue
			}
			record[field] = g.value(field)
		}
		for field, value := range g.constants {
			record[field] = value
		}
		records = append(records, record)
	}
	return records, nil
}

func (g *Randomized) value(field string) interface{} {
	property := g.schema.Properties[field]
	if len(property.Enum) > 0 {
		return g.provider.Choice(field, property.Enum)
	}
	switch property.Type {
	case api.TypeInteger:
		low, high := bounds(property)
		return g.provider.Int(field, int(low), int(high))
	case api.TypeNumber:
		low, high := bounds(property)
		return g.provider.Float(field, low, high)
	case api.TypeBoolean:
		return g.provider.Bool(field)
	default:
		return g.provider.String(field)
	}
}

func bounds(property api.Property) (float64, float64) {
	low, high := float64(defaultRandomMin), float64(defaultRandomMax)
	if property.Minimum != nil {
		low = *property.Minimum
	}
	if property.Maximum != nil {
		high = *property.Maximum
	}
	if high < low {
		high = low
	}
	return low, high
}
