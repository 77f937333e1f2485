package generator

import (
	"strconv"

	"github.com/flow-db/flowload/internal/loader/domain"
	"github.com/flow-db/flowload/pkg/api"
)

const deterministicStringPrefix = "Hello-"

// Deterministic derives every field from the global record index, so a record is identical in every pass:
//   - strings are "Hello-<index>"
//   - integers and numbers are the index, wrapped into [minimum, maximum] when the schema bounds them
//   - enums cycle through their values
//   - booleans alternate, starting with true
type Deterministic struct {
	schema    api.Schema
	fields    []string
	constants map[string]interface{}
}

func NewDeterministic(schema api.Schema, constants map[string]interface{}) *Deterministic {
	return &Deterministic{
		schema:    schema,
		fields:    schema.FieldNames(),
		constants: constants,
	}
}

func (g *Deterministic) Generate(r domain.Range, _ int) ([]api.Record, error) {
	records := make([]api.Record, 0, r.Len())
	for index := r.Start; index < r.End; index++ {
		record := make(api.Record, len(g.fields))
		for _, field := range g.fields {
			record[field] = g.value(field, index)
		}
		for field, value := range g.constants {
			record[field] = value
		}
		records = append(records, record)
	}
	return records, nil
}

func (g *Deterministic) value(field string, index int) interface{} {
	property := g.schema.Properties[field]
	if len(property.Enum) > 0 {
		return property.Enum[index%len(property.Enum)]
	}
	switch property.Type {
	case api.TypeInteger:
		return boundedIndex(property, index)
	case api.TypeNumber:
		return float64(boundedIndex(property, index))
	case api.TypeBoolean:
		return index%2 == 0
	default:
		return deterministicStringPrefix + strconv.Itoa(index)
	}
}

func boundedIndex(property api.Property, index int) int {
	if property.Minimum == nil && property.Maximum == nil {
		return index
	}
	low := 0
	if property.Minimum != nil {
		low = int(*property.Minimum)
	}
	if property.Maximum == nil {
		if index < low {
			return low + index
		}
		return index
	}
	high := int(*property.Maximum)
	if high < low {
		return low
	}
	return low + index%(high-low+1)
}
