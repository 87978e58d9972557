package entity

import (
	"time"

	"github.com/amp-labs/diagramfsm/diagram"
)

// ReleaseKind classifies a pointer release.
type ReleaseKind string

const (
	ReleaseClick     ReleaseKind = "click"
	ReleaseDrag      ReleaseKind = "drag"
	ReleaseLongPress ReleaseKind = "longPress"
)

// Press is where and when the pointer went down on a node.
type Press struct {
	At  time.Time
	Pos diagram.Point
}

// Thresholds bound what still counts as a click.
type Thresholds struct {
	ClickMaxDistance float64
	ClickMaxDuration time.Duration
}

// DefaultThresholds returns 5 units and 200ms.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ClickMaxDistance: 5,
		ClickMaxDuration: 200 * time.Millisecond,
	}
}

// Release is a classified pointer release.
type Release struct {
	Kind     ReleaseKind
	Distance float64
	Elapsed  time.Duration
}

// IsClick reports whether the release was a click.
func (r Release) IsClick() bool {
	return r.Kind == ReleaseClick
}

// EventData returns the mouseUp data the entity conditions read. timeDiff is
// in milliseconds.
func (r Release) EventData() map[string]any {
	return map[string]any{
		DataIsClick:       r.IsClick(),
		DataDistanceMoved: r.Distance,
		DataTimeDiff:      r.Elapsed.Milliseconds(),
	}
}

// ClassifyRelease decides, at release time, what a press turned out to be:
// a click when it moved less than ClickMaxDistance within less than
// ClickMaxDuration, a drag once it moved ClickMaxDistance or more, and a long
// press otherwise.
func ClassifyRelease(press Press, at time.Time, pos diagram.Point, th Thresholds) Release {
	r := Release{
		Distance: press.Pos.Distance(pos),
		Elapsed:  at.Sub(press.At),
	}

	switch {
	case r.Distance >= th.ClickMaxDistance:
		r.Kind = ReleaseDrag
	case r.Elapsed < th.ClickMaxDuration:
		r.Kind = ReleaseClick
	default:
		r.Kind = ReleaseLongPress
	}

	return r
}
