package logging

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration
type Config struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json, pretty or console
	Output string `mapstructure:"output" yaml:"output"` // stdout or stderr
	// Service is stamped on every line when set.
	Service string `mapstructure:"service" yaml:"service"`
}

// shortCallerMarshalFunc formats caller as parent_dir/file.go:line
func shortCallerMarshalFunc(_ uintptr, file string, line int) string {
	dir := filepath.Base(filepath.Dir(file))
	return dir + "/" + filepath.Base(file) + ":" + strconv.Itoa(line)
}

// New builds the process logger and installs it as zerolog's global logger.
func New(config Config) zerolog.Logger {
	return NewWithWriter(config, nil)
}

// NewWithWriter is New with an explicit destination. A nil writer selects
// stdout or stderr from config.Output.
func NewWithWriter(config Config, w io.Writer) zerolog.Logger {
	level := parseLogLevel(config.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.CallerMarshalFunc = shortCallerMarshalFunc
	zerolog.DurationFieldUnit = time.Millisecond

	output := w
	if output == nil {
		output = os.Stdout
		if config.Output == "stderr" {
			output = os.Stderr
		}
	}
	if config.Format == "pretty" || config.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(output).Level(level).With().Timestamp().Caller()
	if config.Service != "" {
		ctx = ctx.Str("service", config.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// NewDefault returns an info level JSON logger on stdout, for commands that
// run without configuration.
func NewDefault() zerolog.Logger {
	return New(Config{Level: "info", Format: "json", Output: "stdout"})
}

// parseLogLevel maps a configured level to zerolog, defaulting to info.
func parseLogLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" || parsed == zerolog.NoLevel || parsed == zerolog.Disabled {
		return zerolog.InfoLevel
	}
	return parsed
}

// WithTraceID adds trace_id to logger context
func WithTraceID(logger zerolog.Logger, traceID string) zerolog.Logger {
	return logger.With().Str("trace_id", traceID).Logger()
}

// WithUserID adds user_id to logger context
func WithUserID(logger zerolog.Logger, userID string) zerolog.Logger {
	return logger.With().Str("user_id", userID).Logger()
}

// WithJackpotID adds jackpot_id to logger context
func WithJackpotID(logger zerolog.Logger, jackpotID string) zerolog.Logger {
	return logger.With().Str("jackpot_id", jackpotID).Logger()
}

// WithBetID adds bet_id to logger context
func WithBetID(logger zerolog.Logger, betID string) zerolog.Logger {
	return logger.With().Str("bet_id", betID).Logger()
}

// WithComponent adds component name to logger context
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
