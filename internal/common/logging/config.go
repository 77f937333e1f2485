package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	FormatCli  = "cli"
	FormatText = "text"
	FormatJson = "json"
)

var formatters = map[string]func() log.Formatter{
	FormatCli: func() log.Formatter { return new(CommandLineFormatter) },
	FormatText: func() log.Formatter {
		return &log.TextFormatter{ForceColors: false, FullTimestamp: true, DisableColors: true}
	},
	FormatJson: func() log.Formatter { return &log.JSONFormatter{} },
}

// ConfigureCliLogging sets up the standard logger for human consumption on stdout.
// Only the message is printed, see CommandLineFormatter.
func ConfigureCliLogging() {
	log.SetFormatter(new(CommandLineFormatter))
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// ConfigureLogging reconfigures the standard logger with the given level and format.
// An empty level or format leaves that setting unchanged.
func ConfigureLogging(level string, format string) error {
	return configure(log.StandardLogger(), level, format)
}

func configure(logger *log.Logger, level string, format string) error {
	if level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return errors.WithStack(err)
		}
		logger.SetLevel(parsed)
	}
	if format != "" {
		newFormatter, ok := formatters[strings.ToLower(format)]
		if !ok {
			valid := maps.Keys(formatters)
			slices.Sort(valid)
			return errors.Errorf("unknown log format: %s. Valid formats are %s", format, valid)
		}
		logger.SetFormatter(newFormatter())
	}
	return nil
}
