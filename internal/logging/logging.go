// Package logging configures the zerolog logger shared by every subsystem of a
// rustic-node process.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a component-scoped logger writing to w (or a console writer over
// os.Stderr when w is nil), tagged with the given component name. Every
// long-lived subsystem that logs (coordinator, gossip engine, internode
// pool and server, client server) holds one of these rather than reaching
// for the global
// logger, mirroring how the teacher's client package embeds a *zerolog.Logger
// per connection instead of calling log.Logger directly.
func New(component string, level zerolog.Level, w io.Writer) zerolog.Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ParseLevel resolves a level name from configuration, defaulting to Info on
// an empty or unrecognized string.
func ParseLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
