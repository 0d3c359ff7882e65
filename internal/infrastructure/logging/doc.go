// Package logging provides structured logging for the AV Gateway.
//
// It wraps log/slog with configuration-driven level, format and output
// selection, including size-based rotation for file output. Components
// receive a *Logger and add their own context via With().
package logging
