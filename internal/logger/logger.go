package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the stdout logger for one binary. Every line carries
// component, e.g. "relay" or "bot".
func New(component, level, format string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, component, level, format)
}

// NewWithWriter is New with an explicit destination. An empty level means
// info; format is "json" or "console" ("text" and "" are accepted for
// console).
func NewWithWriter(out io.Writer, component, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level = strings.TrimSpace(level); level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = parsed
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
	case "console", "text", "":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	default:
		return zerolog.Logger{}, fmt.Errorf("unsupported log format %q", format)
	}

	ctx := zerolog.New(out).Level(lvl).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	return ctx.Logger(), nil
}
