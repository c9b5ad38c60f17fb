package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the bot's root logger. Component loggers derived from it share
// its level, so SetLevel applies to every logger handed out earlier.
type Logger struct {
	logger   zerolog.Logger
	level    *atomic.Int32
	closer   io.Closer
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path
	Console   bool   // enable console output
	Pretty    bool   // pretty format for console
	Redaction bool   // mask tokens and secrets
	MaxSize   int    // max size in MB before rotation (0 disables rotation)
	MaxAge    int    // max age in days of rotated files
	Compress  bool   // gzip rotated files
}

// levelGate drops events below the shared minimum level.
type levelGate struct {
	out io.Writer
	min *atomic.Int32
}

func (g levelGate) Write(p []byte) (int, error) {
	return g.out.Write(p)
}

func (g levelGate) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level != zerolog.NoLevel && level < zerolog.Level(g.min.Load()) {
		return len(p), nil
	}
	return g.out.Write(p)
}

// New builds the logger described by cfg and installs it as the global
// zerolog logger. An empty or unknown level means info.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out, closer, err := buildOutput(cfg)
	if err != nil {
		return nil, err
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		out = redactor.Wrap(out)
	}

	threshold := new(atomic.Int32)
	threshold.Store(int32(level))

	l := &Logger{
		logger:   zerolog.New(levelGate{out: out, min: threshold}).With().Timestamp().Logger(),
		level:    threshold,
		closer:   closer,
		redactor: redactor,
	}
	log.Logger = l.logger
	return l, nil
}

// buildOutput fans out to the console and the log file. With neither
// configured, output goes to stdout.
func buildOutput(cfg Config) (io.Writer, io.Closer, error) {
	var outputs []io.Writer
	if cfg.Console {
		if cfg.Pretty {
			outputs = append(outputs, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		} else {
			outputs = append(outputs, os.Stdout)
		}
	}

	var closer io.Closer
	if cfg.File != "" {
		file, err := openLogFile(cfg)
		if err != nil {
			return nil, nil, err
		}
		closer = file
		outputs = append(outputs, file)
	}

	switch len(outputs) {
	case 0:
		return os.Stdout, nil, nil
	case 1:
		return outputs[0], closer, nil
	default:
		return io.MultiWriter(outputs...), closer, nil
	}
}

func openLogFile(cfg Config) (io.WriteCloser, error) {
	if cfg.MaxSize > 0 {
		return NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// SetLevel changes the minimum level. Unknown names leave it unchanged.
func (l *Logger) SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return fmt.Errorf("invalid log level %q", level)
	}
	l.level.Store(int32(parsed))
	return nil
}

// Level reports the current minimum level.
func (l *Logger) Level() zerolog.Level {
	return zerolog.Level(l.level.Load())
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Component returns a child logger tagged with the component name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}
