package logging

import (
	"go.uber.org/multierr"
)

// multiLogger fans every log entry out to multiple destination loggers.
type multiLogger struct {
	loggers []*Logger
	module  string
}

func (m *multiLogger) Log(keyvals ...interface{}) error {
	var err error
	for _, l := range m.loggers {
		kvs := keyvals
		if m.module != "" && l.module == "" {
			kvs = append([]interface{}{"module", m.module}, kvs...)
		}
		err = multierr.Append(err, l.logger.Log(kvs...))
	}
	return err
}

// NewMultiLogger creates a logger which logs to all of the given loggers.
//
// The level of the returned logger is the most permissive one among the
// given loggers and its module attribution is taken from the first logger
// that has one.
func NewMultiLogger(loggers ...*Logger) *Logger {
	ml := &multiLogger{
		loggers: loggers,
	}
	lvl := LevelError
	for _, l := range loggers {
		if l.level < lvl {
			lvl = l.level
		}
		if ml.module == "" {
			ml.module = l.module
		}
	}
	return &Logger{
		logger: ml,
		level:  lvl,
		module: ml.module,
	}
}
