package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
)

// InstallPrometheusHook counts log lines per level on the default Prometheus registry.
// It must be called at most once per process, since the counter can only be registered once.
func InstallPrometheusHook(logger *logrus.Logger) error {
	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		return errors.WithMessage(err, "registering log metrics")
	}
	logger.AddHook(hook)
	return nil
}
