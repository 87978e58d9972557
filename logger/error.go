package logger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AnnotateError attaches slog key-value pairs to err. Loggers configured by
// this package print them next to the error wherever it ends up logged,
// including after further %w wrapping. Returns nil for a nil err.
func AnnotateError(err error, args ...any) error {
	if err == nil {
		return nil
	}

	r := slog.NewRecord(time.Time{}, slog.LevelDebug, "", 0)
	r.Add(args...)

	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)

		return true
	})

	return &annotatedError{err: err, attrs: attrs}
}

type annotatedError struct {
	err   error
	attrs []slog.Attr
}

func (e *annotatedError) Error() string { return e.err.Error() }
func (e *annotatedError) Unwrap() error { return e.err }

// ErrorAttrs returns every attribute attached along err's chain, outermost
// annotation first.
func ErrorAttrs(err error) []slog.Attr {
	var out []slog.Attr

	for err != nil {
		var annotated *annotatedError
		if !errors.As(err, &annotated) {
			break
		}

		out = append(out, annotated.attrs...)
		err = annotated.err
	}

	return out
}

// ErrorHandler is a slog.Handler decorator that expands AnnotateError
// attributes. Records without annotated errors pass through untouched.
type ErrorHandler struct {
	inner slog.Handler
}

var _ slog.Handler = (*ErrorHandler)(nil)

// NewErrorHandler wraps inner.
func NewErrorHandler(inner slog.Handler) *ErrorHandler {
	return &ErrorHandler{inner: inner}
}

func (h *ErrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ErrorHandler) Handle(ctx context.Context, record slog.Record) error {
	var extra []slog.Attr

	record.Attrs(func(attr slog.Attr) bool {
		if err, ok := attr.Value.Any().(error); ok {
			extra = append(extra, ErrorAttrs(err)...)
		}

		return true
	})

	if len(extra) == 0 {
		return h.inner.Handle(ctx, record)
	}

	expanded := record.Clone()
	expanded.AddAttrs(extra...)

	return h.inner.Handle(ctx, expanded)
}

func (h *ErrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrorHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ErrorHandler) WithGroup(name string) slog.Handler {
	return &ErrorHandler{inner: h.inner.WithGroup(name)}
}
