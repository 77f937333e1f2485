package api

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// LoadStreamConfiguration reads a stream configuration from a YAML or JSON file.
func LoadStreamConfiguration(filePath string) (StreamConfiguration, error) {
	config := StreamConfiguration{}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return config, errors.Wrapf(err, "failed opening file %s", filePath)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrapf(err, "failed to parse file %s", filePath)
	}
	if config.Schema.Type == "" {
		config.Schema.Type = "object"
	}
	return config, nil
}
