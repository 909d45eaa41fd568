package alerts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender sends alerts to the logger
type LogSender struct {
	log *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the alert
func (s *LogSender) Send(ctx context.Context, payload *Payload) error {
	fields := logrus.Fields{
		"severity": payload.Severity,
		"kind":     payload.Kind,
	}
	for k, v := range payload.Details {
		fields[k] = v
	}
	s.log.WithFields(fields).Info(payload.Summary)
	return nil
}
