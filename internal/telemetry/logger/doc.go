// Package logger provides structured logging for reactq.
//
// It wraps log/slog with JSON and text output, a process-wide dynamic
// level, and context propagation of the logger and of the checkpoint id
// that a log line belongs to.
//
// Storage providers and the engine take a *slog.Logger; obtain one from a
// Logger with Slog.
package logger
