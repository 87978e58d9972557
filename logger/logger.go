// Package logger configures slog for the editor tools and hands out loggers
// enriched with values carried by a context: the subsystem, the editor
// session and anything attached with With.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/amp-labs/diagramfsm/settings"
)

// Default subsystem name, set by ConfigureLogging.
var subsystem atomic.Value //nolint:gochecknoglobals

// configMutex serializes ConfigureLoggingWithOptions, which replaces slog's default.
var configMutex sync.Mutex //nolint:gochecknoglobals

type contextKey string

const (
	keyMuted     contextKey = "mute"
	keySubsystem contextKey = "subsystem"
	keySession   contextKey = "session"
	keyValues    contextKey = "loggerValues"
)

// ErrInvalidLogOutput is returned when LOG_OUTPUT names an unknown destination.
var ErrInvalidLogOutput = errors.New("invalid log output")

// Fatal logs an error message and exits.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)

	os.Exit(1)
}

// Options is used to configure logging.
type Options struct {
	Subsystem string
	JSON      bool
	MinLevel  slog.Level
	Output    io.Writer

	// Extra handlers receive every record alongside Output, each with its
	// own level filtering.
	Extra []slog.Handler
}

// ConfigureLoggingWithOptions installs a text or JSON handler as the slog
// default and returns the resulting logger. Errors annotated with
// AnnotateError have their attributes expanded in every record.
func ConfigureLoggingWithOptions(opts Options) *slog.Logger {
	configMutex.Lock()
	defer configMutex.Unlock()

	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.MinLevel}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	if len(opts.Extra) > 0 {
		handler = NewFanoutHandler(append([]slog.Handler{handler}, opts.Extra...)...)
	}

	logger := slog.New(NewErrorHandler(handler))
	slog.SetDefault(logger)

	subsystem.Store(opts.Subsystem)

	return logger
}

// Option adjusts the Options built by ConfigureLogging.
type Option func(*Options)

// WithOutput overrides the destination.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

// WithHandler adds a handler that receives every record as well, such as
// the OpenTelemetry log bridge.
func WithHandler(h slog.Handler) Option {
	return func(o *Options) {
		if h != nil {
			o.Extra = append(o.Extra, h)
		}
	}
}

// WithLevel overrides the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *Options) {
		o.MinLevel = level
	}
}

// ConfigureLogging configures logging from LOG_JSON, LOG_LEVEL and
// LOG_OUTPUT, then applies opts. It returns the default logger.
func ConfigureLogging(ctx context.Context, app string, opts ...Option) (*slog.Logger, error) {
	logJSON, errJSON := settings.Bool(ctx, "LOG_JSON", settings.Default(false)).Value()
	minLevel, errLevel := settings.SlogLevel(ctx, "LOG_LEVEL", settings.Default(slog.LevelInfo)).Value()
	outName, errOutput := settings.String(ctx, "LOG_OUTPUT",
		settings.Default("stdout"),
		settings.Validate(func(name string) error {
			if name != "stdout" && name != "stderr" {
				return fmt.Errorf("%w: %q", ErrInvalidLogOutput, name)
			}

			return nil
		})).Value()

	if err := errors.Join(errJSON, errLevel, errOutput); err != nil {
		return nil, err
	}

	options := Options{
		Subsystem: app,
		JSON:      logJSON,
		MinLevel:  minLevel,
		Output:    os.Stdout,
	}

	if outName == "stderr" {
		options.Output = os.Stderr
	}

	for _, o := range opts {
		o(&options)
	}

	return ConfigureLoggingWithOptions(options), nil
}

// WithMuted marks ctx so that loggers obtained from it discard everything.
// Used for high-frequency paths such as pointer moves.
func WithMuted(ctx context.Context, muted bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, keyMuted, muted)
}

func isMuted(ctx context.Context) bool {
	muted, ok := ctx.Value(keyMuted).(bool)

	return ok && muted
}

// WithSubsystem overrides the default subsystem for ctx.
func WithSubsystem(ctx context.Context, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, keySubsystem, name)
}

// GetSubsystem returns the subsystem of ctx, or the configured default.
func GetSubsystem(ctx context.Context) string { //nolint:contextcheck
	if ctx == nil {
		ctx = context.Background()
	}

	if val, ok := ctx.Value(keySubsystem).(string); ok {
		return val
	}

	if val, ok := subsystem.Load().(string); ok {
		return val
	}

	return ""
}

// WithSession tags ctx with an editor session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, keySession, sessionID)
}

// GetSession returns the session id carried by ctx.
func GetSession(ctx context.Context) (string, bool) { //nolint:contextcheck
	if ctx == nil {
		return "", false
	}

	val, ok := ctx.Value(keySession).(string)

	return val, ok
}

type nullHandler struct{}

func (nullHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nullHandler) Handle(context.Context, slog.Record) error { return nil }
func (n nullHandler) WithAttrs([]slog.Attr) slog.Handler      { return n }
func (n nullHandler) WithGroup(string) slog.Handler           { return n }

var nullLogger = slog.New(nullHandler{}) //nolint:gochecknoglobals

// Get returns the default logger with the subsystem, session and With values
// of the first non-nil context. Muted contexts get a discarding logger.
//
//nolint:contextcheck
func Get(ctx ...context.Context) *slog.Logger {
	realCtx := context.Background()

	for _, c := range ctx {
		if c != nil {
			realCtx = c

			break
		}
	}

	if isMuted(realCtx) {
		return nullLogger
	}

	logger := slog.Default().With("subsystem", GetSubsystem(realCtx))

	if session, ok := GetSession(realCtx); ok {
		logger = logger.With("session", session)
	}

	if vals := getValues(realCtx); len(vals) > 0 {
		logger = logger.With(vals...)
	}

	return logger
}

// With returns a context whose loggers carry the given key-value pairs.
func With(ctx context.Context, values ...any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(values) == 0 {
		return ctx
	}

	prev := getValues(ctx)
	vals := make([]any, 0, len(prev)+len(values))
	vals = append(vals, prev...)
	vals = append(vals, values...)

	return context.WithValue(ctx, keyValues, vals)
}

func getValues(ctx context.Context) []any {
	vals, _ := ctx.Value(keyValues).([]any)

	return vals
}
