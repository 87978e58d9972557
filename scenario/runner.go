package scenario

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"facette.io/natsort"
	"github.com/alitto/pond/v2"
	"github.com/amp-labs/diagramfsm/clock"
	"github.com/amp-labs/diagramfsm/diagram"
	"github.com/amp-labs/diagramfsm/editor"
	"github.com/amp-labs/diagramfsm/logger"
	"github.com/amp-labs/diagramfsm/settings"
)

// holdFor is how long a scripted click keeps the pointer down.
const holdFor = 10 * time.Millisecond

// Result is the outcome of one scenario.
type Result struct {
	Name     string          `json:"name"`
	Path     string          `json:"path,omitempty"`
	Steps    int             `json:"steps"`
	Failures []string        `json:"failures,omitempty"`
	Err      error           `json:"-"`
	Final    editor.Snapshot `json:"final"`
}

// Passed reports whether the scenario ran to the end with every check met.
func (r Result) Passed() bool {
	return r.Err == nil && len(r.Failures) == 0
}

// Player drives one editor over an in-memory scene with a fake clock, one
// step at a time. Apply is safe for concurrent use.
type Player struct {
	mu      sync.Mutex
	ed      *editor.Editor
	scene   *diagram.MemoryScene
	clock   *clock.Fake
	pointer diagram.Point
}

// NewPlayer builds an editor with the given tunables. Extra editor options
// are applied after them.
func NewPlayer(s settings.Editor, opts ...editor.Option) (*Player, error) {
	fake := clock.NewFake(time.Time{})
	scene := diagram.NewMemoryScene()
	scene.SetNow(fake.Now)

	opts = append([]editor.Option{
		editor.WithClock(fake),
		editor.WithSettings(s),
	}, opts...)

	ed, err := editor.New(scene, opts...)
	if err != nil {
		return nil, err
	}

	return &Player{ed: ed, scene: scene, clock: fake}, nil
}

// Editor returns the driven editor.
func (pl *Player) Editor() *editor.Editor {
	return pl.ed
}

// Scene returns the in-memory scene.
func (pl *Player) Scene() *diagram.MemoryScene {
	return pl.scene
}

// Close destroys the editor.
func (pl *Player) Close(ctx context.Context) {
	pl.ed.Destroy(ctx)
}

// Start builds a Player for sc and places its nodes. Steps are not run.
func Start(ctx context.Context, sc *Scenario, opts ...editor.Option) (*Player, error) {
	player, err := NewPlayer(sc.Settings, opts...)
	if err != nil {
		return nil, err
	}

	for _, node := range sc.Nodes {
		if err := player.ed.AddNode(ctx, node.ID, diagram.Point{X: node.X, Y: node.Y}, node.Radius); err != nil {
			player.Close(ctx)

			return nil, err
		}
	}

	return player, nil
}

// Run replays sc against a new Player.
func Run(ctx context.Context, sc *Scenario, opts ...editor.Option) Result {
	result := Result{Name: sc.Name, Path: sc.Path}

	ctx = logger.With(ctx, "scenario", sc.Name)

	player, err := Start(ctx, sc, opts...)
	if err != nil {
		result.Err = err

		return result
	}

	defer player.Close(ctx)

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			result.Err = err

			break
		}

		failures, err := player.Apply(ctx, step)
		if err != nil {
			result.Err = fmt.Errorf("step %d (%s): %w", i+1, step.Do, err)

			break
		}

		for _, f := range failures {
			result.Failures = append(result.Failures, fmt.Sprintf("step %d: %s", i+1, f))
		}

		result.Steps++
	}

	result.Final = player.ed.Snapshot()

	logger.Get(ctx).Debug("Scenario finished",
		"steps", result.Steps, "failures", len(result.Failures), "passed", result.Passed())

	return result
}

// Apply performs one step. Expect steps return the unmet checks; input
// steps fail only when they name an unknown node or a node cannot be added.
func (pl *Player) Apply(ctx context.Context, step Step) ([]string, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	switch step.Do {
	case StepAdd:
		p, err := pl.point(step)
		if err != nil {
			return nil, err
		}

		radius := step.Radius
		if radius <= 0 {
			radius = DefaultRadius
		}

		return nil, pl.ed.AddNode(ctx, step.Node, p, radius)
	case StepRemove:
		pl.ed.RemoveNode(ctx, step.Node)
	case StepClick:
		p, err := pl.point(step)
		if err != nil {
			return nil, err
		}

		pl.ed.NodePress(ctx, step.Node, p)
		pl.clock.Advance(holdFor)
		pl.ed.Release(ctx, p)
		pl.pointer = p
	case StepPress:
		p, err := pl.point(step)
		if err != nil {
			return nil, err
		}

		pl.ed.NodePress(ctx, step.Node, p)
		pl.pointer = p
	case StepRelease:
		p, err := pl.point(step)
		if err != nil {
			return nil, err
		}

		pl.ed.Release(ctx, p)
		pl.pointer = p
	case StepMove:
		p, err := pl.point(step)
		if err != nil {
			return nil, err
		}

		pl.ed.PointerMove(ctx, p)
		pl.pointer = p
	case StepShiftDown:
		pl.ed.ShiftDown(ctx)
	case StepShiftUp:
		pl.ed.ShiftUp(ctx)
	case StepEscape:
		pl.ed.Escape(ctx)
	case StepBackground:
		pl.ed.BackgroundClick(ctx)
	case StepWait:
		pl.clock.Advance(time.Duration(step.Ms) * time.Millisecond)
	case StepExpect:
		return pl.check(step.Expect), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, step.Do)
	}

	return nil, nil
}

// point resolves the step position: explicit coordinates win, then the
// node's center, then the last pointer position.
func (pl *Player) point(step Step) (diagram.Point, error) {
	p := pl.pointer

	if step.Node != "" && step.Do != StepAdd {
		center, _, ok := pl.scene.Center(step.Node)
		if !ok {
			return p, fmt.Errorf("%w: %s", diagram.ErrUnknownNode, step.Node)
		}

		p = center
	}

	if step.X != nil {
		p.X = *step.X
	}

	if step.Y != nil {
		p.Y = *step.Y
	}

	return p, nil
}

func (pl *Player) check(want Expect) []string {
	var failures []string

	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	snap := pl.ed.Snapshot()

	if want.Orchestrator != "" && snap.Orchestrator != want.Orchestrator {
		fail("orchestrator is %q, want %q", snap.Orchestrator, want.Orchestrator)
	}

	ids := make([]string, 0, len(want.Nodes))
	for id := range want.Nodes {
		ids = append(ids, id)
	}

	natsort.Sort(ids)

	for _, id := range ids {
		got, ok := snap.Nodes[id]
		if !ok {
			got = "<removed>"
		}

		if got != want.Nodes[id] {
			fail("node %s is %q, want %q", id, got, want.Nodes[id])
		}
	}

	if want.Edges != nil {
		edges := pl.scene.Edges()
		got := make([]string, 0, len(edges))

		for _, edge := range edges {
			got = append(got, edge.Source+"->"+edge.Target)
		}

		if !slices.Equal(got, want.Edges) {
			fail("edges are [%s], want [%s]", strings.Join(got, " "), strings.Join(want.Edges, " "))
		}
	}

	if want.Selected != nil && snap.Selected != *want.Selected {
		fail("selected is %q, want %q", snap.Selected, *want.Selected)
	}

	if want.PreviewRemoved != nil {
		if got := pl.scene.Preview().Removed; got != *want.PreviewRemoved {
			fail("preview removed %d times, want %d", got, *want.PreviewRemoved)
		}
	}

	if want.Cursor != "" && pl.scene.CursorName() != want.Cursor {
		fail("cursor is %q, want %q", pl.scene.CursorName(), want.Cursor)
	}

	if want.InCooldown != nil && snap.InCooldown != *want.InCooldown {
		fail("inCooldown is %t, want %t", snap.InCooldown, *want.InCooldown)
	}

	return failures
}

// RunAll loads and replays every file on a pool of workers. Results come
// back in natural path order; a file that fails to load yields a Result
// carrying the error.
func RunAll(ctx context.Context, paths []string, workers int, opts ...editor.Option) []Result {
	sorted := slices.Clone(paths)
	natsort.Sort(sorted)

	if workers < 1 {
		workers = 1
	}

	pool := pond.NewPool(workers, pond.WithContext(ctx))

	results := make([]Result, len(sorted))
	group := pool.NewGroup()

	for i, path := range sorted {
		group.Submit(func() {
			sc, err := Load(path)
			if err != nil {
				results[i] = Result{Name: path, Path: path, Err: err}

				return
			}

			results[i] = Run(ctx, sc, opts...)
		})
	}

	if err := group.Wait(); err != nil {
		logger.Get(ctx).Warn("Scenario pool stopped early", "error", err)
	}

	pool.StopAndWait()

	for i := range results {
		if results[i].Name == "" {
			results[i] = Result{Name: sorted[i], Path: sorted[i], Err: context.Cause(ctx)}
		}
	}

	return results
}
