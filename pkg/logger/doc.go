// Package logger provides the structured logging interface used across the
// harvester.
//
// It wraps zerolog behind the Logger interface so that packages accept a
// logger instead of reaching for a global one, and tests can substitute a
// TestLogger that records every message.
//
// Basic usage:
//
//	log, err := logger.New(&cfg.Logging)
//	if err != nil {
//	    return err
//	}
//	log.WithField("key", "home").Info("harvest started")
//
// Domain helpers keep field names consistent between components:
//
//	logger.LogRateLimit(log, "search/topics.json", wait, "reset")
//	logger.LogHarvestProgress(log, "home", harvested, newPosts, pages)
//
// Access tokens must never be logged verbatim; use MaskToken.
//
// Configuration options:
//   - Level: debug, info, warn or error
//   - Format: console (colourised, default) or json
//   - File: optional path; events are then written to the console and the file
package logger
