package internal

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger. Production gets JSON lines on w;
// anything else gets the human console writer.
func NewLogger(w io.Writer, env string, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = w
	if env != "prod" {
		out = zerolog.ConsoleWriter{Out: w}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
