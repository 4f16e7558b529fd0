package logging

import (
	"io"

	"github.com/go-kit/log"
)

// NewJSONLogger creates a logger that writes one JSON object per record
// directly to the given writer, bypassing the logging backend and its
// configured format.  Records at all levels are emitted.
func NewJSONLogger(w io.Writer) *Logger {
	return &Logger{
		logger: log.NewJSONLogger(log.NewSyncWriter(w)),
		level:  LevelDebug,
	}
}
