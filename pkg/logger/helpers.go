package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// MaskToken hides all but the first four characters of a credential
func MaskToken(token string) string {
	if len(token) <= 4 {
		return "***"
	}
	return token[:4] + "***"
}

// LogRequest logs a completed API call at a level matching its status
func LogRequest(log Logger, method, endpoint string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": statusCode,
		"duration":    duration,
	}

	switch {
	case statusCode >= 500:
		log.ErrorWithFields("API request server error", fields)
	case statusCode >= 400:
		log.WarnWithFields("API request client error", fields)
	default:
		log.DebugWithFields("API request completed", fields)
	}
}

// LogRateLimit logs the wait chosen after the API reported a rate limit
func LogRateLimit(log Logger, endpoint string, wait time.Duration, reason string) {
	log.WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"wait":     wait,
		"reason":   reason,
		"action":   "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogHarvestProgress logs running counters for one harvest key
func LogHarvestProgress(log Logger, key string, harvested, newPosts, pages int) {
	log.WithFields(map[string]interface{}{
		"key":       key,
		"harvested": harvested,
		"new":       newPosts,
		"pages":     pages,
	}).Info("Harvest progress")
}

// LogComponentStart logs when a component starts
func LogComponentStart(log Logger, component string, config map[string]interface{}) {
	l := log.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(log Logger, component string, reason string) {
	log.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// OrNop returns l, or a logger that discards everything when l is nil
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
