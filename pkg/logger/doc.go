// Package logger builds the structured slog logger shared by every
// component: JSON records in prod, human-readable text everywhere else.
package logger
