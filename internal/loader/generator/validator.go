package generator

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/flow-db/flowload/pkg/api"
)

// JsonSchemaValidator checks records against the complete JSON schema of a stream,
// the same check the service applies on ingestion.
type JsonSchemaValidator struct {
	schema *gojsonschema.Schema
}

func NewJsonSchemaValidator(schema api.Schema) (*JsonSchemaValidator, error) {
	raw, err := schema.Json()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "compiling json schema")
	}
	return &JsonSchemaValidator{schema: compiled}, nil
}

func (v *JsonSchemaValidator) Validate(record api.Record) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(record))
	if err != nil {
		return errors.WithStack(err)
	}
	if result.Valid() {
		return nil
	}
	descriptions := make([]string, len(result.Errors()))
	for i, e := range result.Errors() {
		descriptions[i] = e.String()
	}
	return errors.New(strings.Join(descriptions, "; "))
}
