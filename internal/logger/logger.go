// Package logger builds the process-wide zerolog logger shared by the
// manager and agent binaries.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// New returns the root logger. Every component receives a copy of this
// logger and attaches its own fields.
func New() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetLevel applies the configured level process-wide. Loggers built by
// New have no per-instance level, so they all follow the global gate,
// including ones constructed before this call. Unknown level names are
// ignored and leave the current level in place.
func SetLevel(level string) {
	if parsed, err := zerolog.ParseLevel(level); err == nil && parsed != zerolog.NoLevel {
		zerolog.SetGlobalLevel(parsed)
	}
}

var Module = fx.Provide(New)
