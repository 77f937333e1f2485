package client

import (
	"encoding/json"

	"github.com/itchyny/gojq"
	"github.com/pkg/errors"

	"github.com/flow-db/flowload/internal/common/flowerrors"
)

// Filter is a compiled jq expression applied to query results before they are printed.
type Filter struct {
	expression string
	code       *gojq.Code
}

func NewFilter(expression string) (*Filter, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "filter", Value: expression, Message: err.Error()})
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "filter", Value: expression, Message: err.Error()})
	}
	return &Filter{expression: expression, code: code}, nil
}

// Apply runs the filter over input and returns every value it emits.
// input may be any JSON serialisable value; it is normalised to the plain types jq operates on.
func (f *Filter) Apply(input interface{}) ([]interface{}, error) {
	normalised, err := normalise(input)
	if err != nil {
		return nil, err
	}
	var results []interface{}
	iter := f.code.Run(normalised)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, errors.Wrapf(err, "applying filter %q", f.expression)
		}
		results = append(results, v)
	}
	return results, nil
}

func normalise(input interface{}) (interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}
