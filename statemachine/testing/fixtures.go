package testing

import (
	"sort"
	"sync"
)

// RecordingTarget is an in-memory statemachine.Target.
type RecordingTarget struct {
	mu    sync.Mutex
	flags map[string]bool
	ops   []string
}

// NewRecordingTarget returns a target with no flags set.
func NewRecordingTarget() *RecordingTarget {
	return &RecordingTarget{flags: make(map[string]bool)}
}

func (r *RecordingTarget) AddFlag(flag string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flags[flag] = true
	r.ops = append(r.ops, "+"+flag)
}

func (r *RecordingTarget) RemoveFlag(flag string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flags, flag)
	r.ops = append(r.ops, "-"+flag)
}

// HasFlag reports whether flag is set.
func (r *RecordingTarget) HasFlag(flag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flags[flag]
}

// Flags returns the set flags, sorted.
func (r *RecordingTarget) Flags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.flags))
	for flag := range r.flags {
		out = append(out, flag)
	}

	sort.Strings(out)

	return out
}

// Ops returns every add (+flag) and remove (-flag) in call order.
func (r *RecordingTarget) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.ops...)
}
