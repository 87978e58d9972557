package settings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Source policies after a committed edge.
const (
	SourceAfterCommitCooldown = "cooldown"
	SourceAfterCommitSelected = "selected"
)

var errNotPositive = errors.New("must be positive")

// Editor holds the interaction tunables of one diagram editor.
type Editor struct {
	CooldownWindow    time.Duration
	ClickMaxDistance  float64
	ClickMaxDuration  time.Duration
	HistoryLimit      int
	SourceAfterCommit string
}

// DefaultEditor returns the built-in tunables.
func DefaultEditor() Editor {
	return Editor{
		CooldownWindow:    100 * time.Millisecond,
		ClickMaxDistance:  5,
		ClickMaxDuration:  200 * time.Millisecond,
		HistoryLimit:      50,
		SourceAfterCommit: SourceAfterCommitCooldown,
	}
}

// LoadEditor reads the EDITOR_* variables over DefaultEditor. Every malformed
// variable is reported in the returned error.
func LoadEditor(ctx context.Context) (Editor, error) {
	dfl := DefaultEditor()

	cooldown, errCooldown := Duration(ctx, "EDITOR_COOLDOWN_WINDOW",
		Default(dfl.CooldownWindow),
		Validate(nonNegative)).Value()

	distance, errDistance := Float(ctx, "EDITOR_CLICK_MAX_DISTANCE",
		Default(dfl.ClickMaxDistance),
		Validate(positive[float64])).Value()

	duration, errDuration := Duration(ctx, "EDITOR_CLICK_MAX_DURATION",
		Default(dfl.ClickMaxDuration),
		Validate(positive[time.Duration])).Value()

	history, errHistory := Int(ctx, "EDITOR_HISTORY_LIMIT",
		Default(dfl.HistoryLimit),
		Validate(positive[int])).Value()

	policy, errPolicy := String(ctx, "EDITOR_SOURCE_AFTER_COMMIT",
		Default(dfl.SourceAfterCommit),
		OneOf(SourceAfterCommitCooldown, SourceAfterCommitSelected)).Value()

	if err := errors.Join(errCooldown, errDistance, errDuration, errHistory, errPolicy); err != nil {
		return dfl, err
	}

	return Editor{
		CooldownWindow:    cooldown,
		ClickMaxDistance:  distance,
		ClickMaxDuration:  duration,
		HistoryLimit:      history,
		SourceAfterCommit: policy,
	}, nil
}

func positive[T int | float64 | time.Duration](v T) error {
	if v <= 0 {
		return fmt.Errorf("%w: %v", errNotPositive, v)
	}

	return nil
}

func nonNegative(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %v is negative", ErrBadEnvVar, d)
	}

	return nil
}
