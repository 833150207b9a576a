package logger

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// Watermill adapts a zerolog logger to watermill's LoggerAdapter so the
// pipeline's pub/sub logs flow through the same sink as everything else.
func Watermill(l zerolog.Logger) watermill.LoggerAdapter {
	return &watermillAdapter{l: l}
}

type watermillAdapter struct {
	l zerolog.Logger
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.l.Error().Err(err), msg, fields)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.l.Info(), msg, fields)
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.l.Debug(), msg, fields)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.l.Trace(), msg, fields)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.l.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &watermillAdapter{l: ctx.Logger()}
}

func (a *watermillAdapter) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
