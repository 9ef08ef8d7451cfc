package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "PROFILEMIG_LOG_LEVEL"
	EnvLogNoColor = "PROFILEMIG_LOG_NOCOLOR"
)

// Options configures the process logger.
type Options struct {
	Level   string
	Dir     string // transcript directory; empty disables the file
	Console io.Writer
	NoColor bool
	Now     func() time.Time
}

// Logger is the configured logger plus its transcript file, if any.
type Logger struct {
	zerolog.Logger
	Transcript string
	file       *os.File
}

// Close flushes and closes the transcript.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Setup builds the console + transcript logger and installs it as the
// zerolog global.
func Setup(app string, opts Options) (*Logger, error) {
	level, ok := ParseLevel(opts.Level)
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", opts.Level)
	}
	if envLevel, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok && os.Getenv(EnvLogLevel) != "" {
		level = envLevel
	}
	if os.Getenv(EnvLogNoColor) != "" {
		opts.NoColor = true
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	}}

	out := &Logger{}
	if opts.Dir != "" {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		path := filepath.Join(opts.Dir, fmt.Sprintf("%s-%s.log", app, now().Format("20060102-150405")))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open transcript: %w", err)
		}
		writers = append(writers, f)
		out.file = f
		out.Transcript = path
	}

	out.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Str("app", app).Logger()
	log.Logger = out.Logger
	return out, nil
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zerolog.InfoLevel, true
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
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

// RunSink returns a copy of base that also mirrors each message into a
// line-oriented sink such as models.Run.AppendLog.
func RunSink(base zerolog.Logger, appendLine func(string)) zerolog.Logger {
	return base.Hook(zerolog.HookFunc(func(e *zerolog.Event, level zerolog.Level, msg string) {
		if msg == "" || level < zerolog.InfoLevel {
			return
		}
		line := msg
		if level >= zerolog.WarnLevel {
			line = strings.ToUpper(level.String()) + ": " + msg
		}
		appendLine(line)
	}))
}
