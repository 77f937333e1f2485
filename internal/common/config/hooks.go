package config

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// CustomHooks replace viper's default decode hook, so they repeat its duration and slice conversions.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
		JsonObjectHookFunc(),
	)),
}

// JsonObjectHookFunc decodes a string holding a JSON object into a map, so that map valued options
// can be given as a single flag or environment variable, e.g. --constants '{"type":"cars"}'.
func JsonObjectHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Map {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if s == "" {
			return map[string]interface{}{}, nil
		}
		result := map[string]interface{}{}
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil, errors.Wrapf(err, "%q is not a JSON object", s)
		}
		return result, nil
	}
}
