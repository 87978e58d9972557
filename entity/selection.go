package entity

import (
	"context"
	"sync"
)

// SelectionTracker keeps the currently selected node by following the
// manager's change stream. Entering selected makes a node current; the
// current node leaving to idle or cooldown, or being removed, clears it.
type SelectionTracker struct {
	mu          sync.RWMutex
	selected    string
	unsubscribe func()
}

// NewSelectionTracker subscribes to m. Call Close to stop tracking.
func NewSelectionTracker(m *Manager) *SelectionTracker {
	t := &SelectionTracker{}
	t.unsubscribe = m.Subscribe(t.observe)

	return t
}

func (t *SelectionTracker) observe(_ context.Context, change Change) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case change.To == StateSelected:
		t.selected = change.Node
	case change.Node != t.selected:
	case change.Removed, change.To == StateIdle, change.To == StateCooldown:
		t.selected = ""
	}
}

// Selected returns the selected node, if any.
func (t *SelectionTracker) Selected() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.selected, t.selected != ""
}

// Close stops following the manager.
func (t *SelectionTracker) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}
