// Package settings reads runtime tunables from the environment. A Reader
// carries the parsed value together with whether the variable was present
// and any parse error, so callers pick their own failure policy.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadEnvVar     = errors.New("error parsing environment variable")
	ErrEnvVarMissing = errors.New("missing environment variable")
)

// Reader is a value read from an environment variable.
type Reader[T any] struct {
	key     string
	present bool
	err     error

	value T
}

// Key returns the environment variable name.
func (r Reader[T]) Key() string {
	return r.key
}

// Present reports whether a value was found or defaulted.
func (r Reader[T]) Present() bool {
	return r.present
}

// Value returns the value, or an error when it is missing or malformed.
func (r Reader[T]) Value() (T, error) { //nolint:ireturn
	if r.err != nil {
		return r.value, fmt.Errorf("%w %s: %w", ErrBadEnvVar, r.key, r.err)
	}

	if !r.present {
		return r.value, fmt.Errorf("%w %s", ErrEnvVarMissing, r.key)
	}

	return r.value, nil
}

// ValueOrElse returns the value, or dfl when it is missing or malformed.
func (r Reader[T]) ValueOrElse(dfl T) T { //nolint:ireturn
	if r.present && r.err == nil {
		return r.value
	}

	return dfl
}

// ValueOrFatal returns the value or exits the program.
func (r Reader[T]) ValueOrFatal() T { //nolint:ireturn
	value, err := r.Value()
	if err != nil {
		slog.Error("error reading environment variable", "key", r.key, "error", err)
		os.Exit(1)
	}

	return value
}

// WithDefault fills in dfl when the variable is absent. Parse errors are kept.
func (r Reader[T]) WithDefault(dfl T) Reader[T] {
	if r.present || r.err != nil {
		return r
	}

	r.value = dfl
	r.present = true

	return r
}

// Option modifies a Reader.
type Option[T any] func(Reader[T]) Reader[T]

// Default provides a value for an absent variable.
func Default[T any](dfl T) Option[T] {
	return func(r Reader[T]) Reader[T] {
		return r.WithDefault(dfl)
	}
}

// Validate runs check on a present, well-formed value.
func Validate[T any](check func(T) error) Option[T] {
	return func(r Reader[T]) Reader[T] {
		if r.present && r.err == nil {
			r.err = check(r.value)
		}

		return r
	}
}

// OneOf restricts a value to the allowed set.
func OneOf[T comparable](allowed ...T) Option[T] {
	return Validate(func(value T) error {
		for _, candidate := range allowed {
			if candidate == value {
				return nil
			}
		}

		return fmt.Errorf("%w: %v is not one of %v", ErrBadEnvVar, value, allowed)
	})
}

type overrideKey string

// WithOverride makes key resolve to value for readers given ctx. Tests use it
// instead of mutating the process environment.
func WithOverride(ctx context.Context, key, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, overrideKey(key), value)
}

func lookup(ctx context.Context, key string) (string, bool) {
	if ctx != nil {
		if value, ok := ctx.Value(overrideKey(key)).(string); ok {
			return value, true
		}
	}

	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}

	return value, true
}

func read[T any](ctx context.Context, key string, parse func(string) (T, error), opts []Option[T]) Reader[T] {
	r := Reader[T]{key: key}

	if raw, ok := lookup(ctx, key); ok {
		r.value, r.err = parse(strings.TrimSpace(raw))
		r.present = r.err == nil
	}

	for _, opt := range opts {
		r = opt(r)
	}

	return r
}

// String reads a string variable.
func String(ctx context.Context, key string, opts ...Option[string]) Reader[string] {
	return read(ctx, key, func(s string) (string, error) { return s, nil }, opts)
}

// Bool reads a boolean variable (1, t, true, yes, on and their negations).
func Bool(ctx context.Context, key string, opts ...Option[bool]) Reader[bool] {
	return read(ctx, key, parseBool, opts)
}

// Int reads an integer variable.
func Int(ctx context.Context, key string, opts ...Option[int]) Reader[int] {
	return read(ctx, key, strconv.Atoi, opts)
}

// Float reads a floating point variable.
func Float(ctx context.Context, key string, opts ...Option[float64]) Reader[float64] {
	return read(ctx, key, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, opts)
}

// Duration reads a duration. A bare integer is taken as milliseconds.
func Duration(ctx context.Context, key string, opts ...Option[time.Duration]) Reader[time.Duration] {
	return read(ctx, key, parseDuration, opts)
}

// SlogLevel reads a log level name (debug, info, warn, error).
func SlogLevel(ctx context.Context, key string, opts ...Option[slog.Level]) Reader[slog.Level] {
	return read(ctx, key, func(s string) (slog.Level, error) {
		var level slog.Level

		err := level.UnmarshalText([]byte(s))

		return level, err
	}, opts)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not a boolean", ErrBadEnvVar, s)
	}
}

func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return time.ParseDuration(s)
}
