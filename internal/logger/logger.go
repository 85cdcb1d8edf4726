// Package logger builds the zerolog logger used for the client's
// debug-mode diagnostics. Unlike a single package-global logger, this
// returns one instance per client so two clients in the same process can
// carry independent debug settings.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to stderr. When debug is false the
// logger is set to zerolog.Disabled so debugf call sites stay cheap no-ops
// without call-site branching.
func New(debug bool) *zerolog.Logger {
	level := zerolog.Disabled
	if debug {
		level = zerolog.DebugLevel
	}

	var w io.Writer = os.Stderr
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &l
}
