package api

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const JsonSchemaDraft = "http://json-schema.org/draft-07/schema#"

// Field types understood by the record generators.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Schema is the subset of JSON schema used to describe the documents of a stream.
type Schema struct {
	Draft      string              `json:"$schema,omitempty"`
	Type       string              `json:"type,omitempty"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string        `json:"type"`
	Enum        []interface{} `json:"enum,omitempty"`
	Description string        `json:"description,omitempty"`
	Minimum     *float64      `json:"minimum,omitempty"`
	Maximum     *float64      `json:"maximum,omitempty"`
}

// FieldNames returns the declared property names in sorted order.
func (s Schema) FieldNames() []string {
	names := maps.Keys(s.Properties)
	slices.Sort(names)
	return names
}

// IsRequired reports whether field is listed as required.
func (s Schema) IsRequired(field string) bool {
	return slices.Contains(s.Required, field)
}

// Json returns the schema as a JSON document.
func (s Schema) Json() ([]byte, error) {
	return json.Marshal(s)
}

// Validate checks the schema is usable for generating records.
func (s Schema) Validate() error {
	if len(s.Properties) == 0 {
		return fmt.Errorf("schema declares no properties")
	}
	for _, name := range s.FieldNames() {
		switch s.Properties[name].Type {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		default:
			return fmt.Errorf("property %q has unsupported type %q", name, s.Properties[name].Type)
		}
	}
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("required property %q is not declared", name)
		}
	}
	return nil
}

// DefaultStreamName is the stream used when no configuration file is given.
const DefaultStreamName = "cars"

// DefaultStreamConfiguration returns the cars stream used by the reference load tests.
func DefaultStreamConfiguration() StreamConfiguration {
	return StreamConfiguration{
		Name: DefaultStreamName,
		Schema: Schema{
			Draft: JsonSchemaDraft,
			Type:  "object",
			Properties: map[string]Property{
				"type":     {Type: TypeString},
				"quantity": {Type: TypeInteger},
				"quality":  {Type: TypeString, Enum: []interface{}{"AAA", "A", "B", "C"}},
				"owner":    {Type: TypeString},
			},
			Required: []string{"type", "quantity", "quality"},
		},
	}
}
