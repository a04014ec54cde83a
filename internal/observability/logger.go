package observability

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "NASSYNC_LOG_LEVEL"
	EnvLogNoColor = "NASSYNC_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

// InitLogger builds the process logger and installs it as the global
// zerolog logger. Safe to call more than once; only the first call
// takes effect.
func InitLogger(app string, profile Profile) zerolog.Logger {
	configureOnce.Do(func() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    noColor(),
		}
		logger := zerolog.New(output).With().Timestamp().Str("app", app).Logger()
		logger = logger.Level(level(profile))
		log.Logger = logger
	})
	return log.Logger
}

func level(profile Profile) zerolog.Level {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		return lvl
	}
	if profile == ProfileTest {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func noColor() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogNoColor))) {
	case "1", "t", "true", "yes":
		return true
	}
	return false
}
