package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillAdapter lets watermill publishers log through zerolog.
// Watermill is chatty at info, so its Info maps to Debug and Debug to Trace.
type WatermillAdapter struct {
	log zerolog.Logger
}

var _ watermill.LoggerAdapter = WatermillAdapter{}

// NewWatermillAdapter wraps l, or the global logger when l is nil.
func NewWatermillAdapter(l *zerolog.Logger) WatermillAdapter {
	if l == nil {
		g := Logger()
		l = &g
	}
	return WatermillAdapter{log: l.With().Str("component", "watermill").Logger()}
}

func (a WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return WatermillAdapter{log: a.log.With().Fields(map[string]interface{}(fields)).Logger()}
}
