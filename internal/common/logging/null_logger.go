package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

var NullLogger = &logrus.Logger{
	Out:       io.Discard,
	Formatter: new(logrus.TextFormatter),
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.PanicLevel,
}

// NullEntry returns an entry on NullLogger, for use where a *logrus.Entry is required but output isn't wanted.
func NullEntry() *logrus.Entry {
	return logrus.NewEntry(NullLogger)
}
