package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	LogToFile bool
	LogFile   *os.File // Optional, used if LogToFile is true

	zl zerolog.Logger
}

// NewLogger writes colored console output to stdout, or JSON lines to the
// file named by FETCHER_LOG when it is set. It starts at info level.
func NewLogger() *Logger {
	logFile := os.Getenv("FETCHER_LOG")
	if logFile != "" {
		dir := filepath.Dir(logFile)
		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			panic(err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			panic(err)
		}
		return &Logger{
			LogToFile: true,
			LogFile:   file,
			zl:        zerolog.New(file).Level(zerolog.InfoLevel).With().Timestamp().Logger(),
		}
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	return &Logger{
		LogToFile: false,
		LogFile:   nil,
		zl:        zerolog.New(console).Level(zerolog.InfoLevel).With().Timestamp().Logger(),
	}
}

// NewWriterLogger logs JSON lines to w. Used by tests to capture output.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w)}
}

// SetLevel accepts zerolog level names (debug, info, warn, error).
// Unknown names leave the level unchanged.
func (l *Logger) SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		l.Warn("Unknown log level " + level + ", keeping " + l.zl.GetLevel().String())
		return
	}
	l.zl = l.zl.Level(lvl)
}

func (l *Logger) Debug(message string) {
	l.zl.Debug().Msg(message)
}

func (l *Logger) Info(message string) {
	l.zl.Info().Msg(message)
}

func (l *Logger) Warn(message string) {
	l.zl.Warn().Msg(message)
}

func (l *Logger) Error(message string) {
	l.zl.Error().Msg(message)
}

func (l *Logger) Fatal(message string) {
	l.zl.Fatal().Msg(message) // exits the process
}

// With returns a child logger carrying one extra field on every line.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{
		LogToFile: l.LogToFile,
		LogFile:   l.LogFile,
		zl:        l.zl.With().Str(key, value).Logger(),
	}
}

var GlobalLogger = NewLogger()
