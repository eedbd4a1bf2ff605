package events

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

// watermillLogger пускает логи watermill через наш zap-логгер.
type watermillLogger struct {
	log    logger.Logger
	fields watermill.LogFields
}

func newWatermillLogger(log logger.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (l *watermillLogger) details(fields watermill.LogFields) map[string]any {
	out := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	d := l.details(fields)
	d["error"] = err
	l.log.Error("watermill", msg, d)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info("watermill", msg, l.details(fields))
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug("watermill", msg, l.details(fields))
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debug("watermill", msg, l.details(fields))
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.log, fields: l.details(fields)}
}
