// Package diagram declares the collaborators the interaction core drives:
// node geometry lookups, the edge collection, the preview edge renderer, the
// cursor and per-node visual flags. Nothing here renders.
package diagram

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrUnknownNode is returned when an id does not name a registered node.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDuplicateNode is returned when a node id is registered twice.
	ErrDuplicateNode = errors.New("node already exists")
)

// Cursor names.
const (
	CursorDefault   = "default"
	CursorCrosshair = "crosshair"
)

// Point is a position in diagram coordinates.
type Point struct {
	X float64 `json:"x" mapstructure:"x" yaml:"x"`
	Y float64 `json:"y" mapstructure:"y" yaml:"y"`
}

// Distance returns the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Edge is a committed connection between two nodes.
type Edge struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"createdAt"`
}

// NodeRegistry answers geometry questions about live nodes.
type NodeRegistry interface {
	Has(id string) bool
	// Contains reports whether p lies inside node id.
	Contains(id string, p Point) bool
	// Center returns the node's center and radius.
	Center(id string) (Point, float64, bool)
}

// EdgeSink receives committed edges.
type EdgeSink interface {
	CreateEdge(ctx context.Context, source, target string) (Edge, error)
}

// PreviewEdge is the transient edge drawn while a connection is being made.
type PreviewEdge interface {
	Update(from, to Point)
	Remove()
}

// PreviewRenderer creates preview edges.
type PreviewRenderer interface {
	CreatePreview(ctx context.Context, source string) PreviewEdge
}

// Cursor sets the pointer cursor of the drawing surface.
type Cursor interface {
	SetCursor(name string)
}

// Highlighter toggles named visual flags on a node.
type Highlighter interface {
	AddFlag(entity, flag string)
	RemoveFlag(entity, flag string)
}

// Scene is every collaborator at once, as provided by a rendering layer.
type Scene interface {
	NodeRegistry
	EdgeSink
	PreviewRenderer
	Cursor
	Highlighter
}

// PreviewPath returns the segment of a preview edge leaving a circular node
// of the given center and radius toward pointer: it starts on the circle,
// not at its center.
func PreviewPath(center Point, radius float64, pointer Point) (Point, Point) {
	dx := pointer.X - center.X
	dy := pointer.Y - center.Y

	dist := math.Hypot(dx, dy)
	if dist == 0 {
		dist = 1
	}

	start := Point{
		X: center.X + dx*(radius/dist),
		Y: center.Y + dy*(radius/dist),
	}

	return start, pointer
}
