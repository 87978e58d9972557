package statemachine

import (
	"github.com/amp-labs/diagramfsm/clock"
)

// DefaultHistoryLimit bounds the transition log of a Machine.
const DefaultHistoryLimit = 50

// Option configures a Machine, ActionExecutor or Manager.
type Option func(*options)

type options struct {
	kind         string
	logger       Logger
	clock        clock.Clock
	target       Target
	historyLimit int
}

func newOptions(opts []Option) options {
	o := options{
		clock:        clock.New(),
		historyLimit: DefaultHistoryLimit,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = NewDefaultLogger()
	}

	return o
}

// WithLogger sets the logging hooks.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock used for timestamps and timeouts.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithTarget sets the visual handle that flag actions mutate.
func WithTarget(target Target) Option {
	return func(o *options) {
		o.target = target
	}
}

// WithHistoryLimit bounds the transition log. Values below 1 keep the default.
func WithHistoryLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.historyLimit = limit
		}
	}
}

// WithKind sets the machine kind used as the metrics label. Managers default
// it to the configuration name.
func WithKind(kind string) Option {
	return func(o *options) {
		o.kind = kind
	}
}
