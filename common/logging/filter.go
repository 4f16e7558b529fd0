package logging

import (
	"github.com/go-kit/log"
)

// keyFilter is a log.Logger that drops configured keys, together with
// their values, from every record before forwarding it.
type keyFilter struct {
	next log.Logger
	drop map[any]struct{}
}

func (f *keyFilter) Log(keyvals ...any) error {
	kept := make([]any, 0, len(keyvals))
	for i := 0; i+1 < len(keyvals); i += 2 {
		if _, ok := f.drop[keyvals[i]]; ok {
			continue
		}
		kept = append(kept, keyvals[i], keyvals[i+1])
	}
	if len(keyvals)%2 == 1 {
		// A dangling key is passed through so the downstream logger can
		// apply its own missing-value convention to it.
		if _, ok := f.drop[keyvals[len(keyvals)-1]]; !ok {
			kept = append(kept, keyvals[len(keyvals)-1])
		}
	}
	return f.next.Log(kept...)
}

// NewFilterLogger wraps the base logger so that the given keys never
// appear in its output.  Level and module attribution are inherited
// from the base logger.
func NewFilterLogger(base *Logger, dropKeys ...any) *Logger {
	drop := make(map[any]struct{}, len(dropKeys))
	for _, k := range dropKeys {
		drop[k] = struct{}{}
	}

	return &Logger{
		logger: &keyFilter{
			next: base.logger,
			drop: drop,
		},
		level:  base.level,
		module: base.module,
	}
}
