package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Config controls the global logger
type Config struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"auto" validate:"oneof=auto console json"`
}

// Setup configures the global zerolog logger. Format "auto" picks the console
// writer when stderr is a terminal and JSON otherwise.
func Setup(cfg Config) {
	SetupWriter(cfg, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

// SetupWriter is Setup with an explicit destination
func SetupWriter(cfg Config, out io.Writer, isTTY bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := cfg.Format == "console" || (cfg.Format != "json" && isTTY)
	if console {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
