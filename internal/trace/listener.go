package trace

import (
	"github.com/go-logr/logr"
)

// Listener receives trace output. Error is used for messages about
// responses the client could not process.
type Listener interface {
	Trace(traceType, message string)
	Error(traceType, message string)
}

// LogrListener writes traces through a logr.Logger. Trace messages are
// logged at V(1).
type LogrListener struct {
	log logr.Logger
}

// NewLogrListener returns a Listener writing to log.
func NewLogrListener(log logr.Logger) *LogrListener {
	return &LogrListener{log: log}
}

func (l *LogrListener) Trace(traceType, message string) {
	l.log.V(1).Info(traceType+" - "+message, "traceType", traceType)
}

func (l *LogrListener) Error(traceType, message string) {
	l.log.Error(nil, traceType+" - "+message, "traceType", traceType)
}
