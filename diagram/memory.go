package diagram

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"facette.io/natsort"
	"github.com/google/uuid"
)

type circle struct {
	center Point
	radius float64
	order  int
}

// PreviewStats counts preview edge lifecycle calls.
type PreviewStats struct {
	Created int
	Removed int
	Updates int
	Active  bool
	Source  string
	From    Point
	To      Point
}

// MemoryScene is an in-memory Scene of circular nodes. It records every call
// so tests and simulations can inspect side effects.
type MemoryScene struct {
	mu      sync.Mutex
	nodes   map[string]*circle
	nextOrd int
	flags   map[string]map[string]bool
	edges   []Edge
	cursor  string
	preview PreviewStats
	current *memoryPreview
	now     func() time.Time
}

var _ Scene = (*MemoryScene)(nil)

// NewMemoryScene returns an empty scene with the default cursor.
func NewMemoryScene() *MemoryScene {
	return &MemoryScene{
		nodes:  make(map[string]*circle),
		flags:  make(map[string]map[string]bool),
		cursor: CursorDefault,
		now:    time.Now,
	}
}

// SetNow replaces the time source used to stamp edges.
func (s *MemoryScene) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = now
}

// AddNode registers a circular node.
func (s *MemoryScene) AddNode(id string, center Point, radius float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}

	s.nextOrd++
	s.nodes[id] = &circle{center: center, radius: radius, order: s.nextOrd}

	return nil
}

// RemoveNode drops a node and its flags. Edges touching it are kept.
func (s *MemoryScene) RemoveNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return false
	}

	delete(s.nodes, id)
	delete(s.flags, id)

	return true
}

// MoveNode recenters a node.
func (s *MemoryScene) MoveNode(id string, center Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}

	node.center = center

	return nil
}

// NodeIDs returns the node ids in natural order (n2 before n10).
func (s *MemoryScene) NodeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}

	natsort.Sort(ids)

	return ids
}

// NodeAt returns the topmost node containing p; later nodes draw on top.
func (s *MemoryScene) NodeAt(p Point) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := ""
	bestOrder := -1

	for id, node := range s.nodes {
		if node.center.Distance(p) <= node.radius && node.order > bestOrder {
			best, bestOrder = id, node.order
		}
	}

	return best, bestOrder >= 0
}

func (s *MemoryScene) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.nodes[id]

	return ok
}

func (s *MemoryScene) Contains(id string, p Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]

	return ok && node.center.Distance(p) <= node.radius
}

func (s *MemoryScene) Center(id string) (Point, float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return Point{}, 0, false
	}

	return node.center, node.radius, true
}

func (s *MemoryScene) CreateEdge(_ context.Context, source, target string) (Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{source, target} {
		if _, ok := s.nodes[id]; !ok {
			return Edge{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
	}

	edge := Edge{
		ID:        uuid.NewString(),
		Source:    source,
		Target:    target,
		CreatedAt: s.now(),
	}
	s.edges = append(s.edges, edge)

	return edge, nil
}

// Edges returns the committed edges in creation order.
func (s *MemoryScene) Edges() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Edge(nil), s.edges...)
}

func (s *MemoryScene) SetCursor(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursor = name
}

// CursorName returns the current cursor.
func (s *MemoryScene) CursorName() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cursor
}

func (s *MemoryScene) AddFlag(entity, flag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flags[entity] == nil {
		s.flags[entity] = make(map[string]bool)
	}

	s.flags[entity][flag] = true
}

func (s *MemoryScene) RemoveFlag(entity, flag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.flags[entity], flag)
}

// Flags returns the flags set on entity, sorted.
func (s *MemoryScene) Flags(entity string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.flags[entity]))
	for flag := range s.flags[entity] {
		out = append(out, flag)
	}

	sort.Strings(out)

	return out
}

// HasFlag reports whether flag is set on entity.
func (s *MemoryScene) HasFlag(entity, flag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flags[entity][flag]
}

// FlaggedWith returns, in natural order, every entity carrying flag.
func (s *MemoryScene) FlaggedWith(flag string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string

	for entity, flags := range s.flags {
		if flags[flag] {
			out = append(out, entity)
		}
	}

	natsort.Sort(out)

	return out
}

func (s *MemoryScene) CreatePreview(_ context.Context, source string) PreviewEdge {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.preview.Created++
	s.preview.Active = true
	s.preview.Source = source
	s.preview.From, s.preview.To = Point{}, Point{}

	s.current = &memoryPreview{scene: s}

	return s.current
}

// Preview returns the preview edge counters.
func (s *MemoryScene) Preview() PreviewStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.preview
}

type memoryPreview struct {
	scene *MemoryScene
}

func (p *memoryPreview) Update(from, to Point) {
	s := p.scene

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != p {
		return
	}

	s.preview.Updates++
	s.preview.From, s.preview.To = from, to
}

// Remove counts every call, including repeats, so double removal is visible.
func (p *memoryPreview) Remove() {
	s := p.scene

	s.mu.Lock()
	defer s.mu.Unlock()

	s.preview.Removed++

	if s.current == p {
		s.current = nil
		s.preview.Active = false
	}
}
