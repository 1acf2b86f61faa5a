package logutil

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ConfigureLogger sets up the global logger to write to stderr, either for a
// terminal or as JSON lines carrying a severity field.
func ConfigureLogger(level, format string) {
	configureLogger(os.Stderr, level, format)
}

func configureLogger(w io.Writer, level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(w).With().Timestamp().Logger()
	if strings.ToLower(format) == FormatJSON {
		l = l.Hook(ErrorHook{})
	} else {
		l = l.Output(zerolog.ConsoleWriter{Out: w})
	}
	log.Logger = l.Sample(LevelSampler{Level: lvl})
}

type ErrorHook struct{}

func (h ErrorHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	e.Str("severity", level.String())
}

// LevelSampler keeps events at or above Level.
type LevelSampler struct {
	Level zerolog.Level
}

func (l LevelSampler) Sample(lvl zerolog.Level) bool {
	return lvl >= l.Level
}
