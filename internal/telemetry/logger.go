// Package telemetry holds the gateway's structured logging and metrics
// capabilities, injected into the executor, transports, and gateway rather
// than reached for globally.
package telemetry

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger keeps the teacher's logger.Logger shape (Debug/Info/Warn/Error
// with trailing tag pairs) but backs it with zerolog's structured event
// builder instead of a bare fmt.Fprintln, since a gateway process's logs
// are consumed by log aggregation, not a terminal.
type Logger interface {
	Debug(msg string, tags ...interface{})
	Info(msg string, tags ...interface{})
	Warn(msg string, tags ...interface{})
	Error(msg string, tags ...interface{})
}

type zlogger struct {
	z zerolog.Logger
}

// New returns a Logger backed by zerolog, writing JSON lines to stdout.
func New(level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
	return &zlogger{z: z}
}

func tagsEvent(e *zerolog.Event, tags []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(tags); i += 2 {
		key, ok := tags[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, tags[i+1])
	}
	return e
}

func (l *zlogger) Debug(msg string, tags ...interface{}) {
	tagsEvent(l.z.Debug(), tags).Msg(msg)
}

func (l *zlogger) Info(msg string, tags ...interface{}) {
	tagsEvent(l.z.Info(), tags).Msg(msg)
}

func (l *zlogger) Warn(msg string, tags ...interface{}) {
	tagsEvent(l.z.Warn(), tags).Msg(msg)
}

func (l *zlogger) Error(msg string, tags ...interface{}) {
	tagsEvent(l.z.Error(), tags).Msg(msg)
}
