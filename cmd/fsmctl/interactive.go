package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"facette.io/natsort"
	"github.com/amp-labs/diagramfsm/cli"
	"github.com/amp-labs/diagramfsm/configs"
	"github.com/amp-labs/diagramfsm/editor"
	"github.com/amp-labs/diagramfsm/scenario"
	"github.com/amp-labs/diagramfsm/statemachine/visualizer"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

const (
	actionGraph = "graph"
	actionQuit  = "quit"
)

const defaultLayout = `
nodes:
  - {id: n1, x: 0, y: 0}
  - {id: n2, x: 100, y: 0}
  - {id: n3, x: 0, y: 100}
`

var interactiveActions = []string{ //nolint:gochecknoglobals
	scenario.StepClick,
	scenario.StepMove,
	scenario.StepShiftDown,
	scenario.StepShiftUp,
	scenario.StepPress,
	scenario.StepRelease,
	scenario.StepEscape,
	scenario.StepBackground,
	scenario.StepWait,
	scenario.StepAdd,
	scenario.StepRemove,
	actionGraph,
	actionQuit,
}

// asker is the part of cli.Prompter the session loop needs.
type asker interface {
	Select(label string, items ...string) (string, error)
	String(label string) (string, error)
	Float(label string) (float64, error)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newInteractiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interactive [layout]",
		Short: "Drive an editor from the terminal",
		Long: `Opens an editor over an in-memory scene and applies the inputs you pick
one at a time, printing every machine state after each. The optional layout
is a scenario file whose nodes (and steps) seed the session.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(defaultLayout)

			if len(args) == 1 {
				var err error

				data, err = os.ReadFile(args[0])
				if err != nil {
					return err
				}
			}

			sc, err := scenario.ParseSetup(data)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			player, err := scenario.Start(ctx, sc)
			if err != nil {
				return err
			}

			defer player.Close(ctx)

			prompter := cli.Prompter{
				In:  io.NopCloser(cmd.InOrStdin()),
				Out: nopWriteCloser{cmd.OutOrStdout()},
			}

			return interact(cmd, player, sc.Steps, prompter)
		},
	}
}

func interact(cmd *cobra.Command, player *scenario.Player, seed []scenario.Step, ask asker) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	for _, step := range seed {
		if err := applyAndReport(cmd, player, step); err != nil {
			return err
		}
	}

	fmt.Fprint(out, describe(player.Editor().Snapshot()))

	for {
		if err := ctx.Err(); err != nil {
			return nil //nolint:nilerr
		}

		action, err := ask.Select("Input", interactiveActions...)
		if err != nil {
			return promptDone(err)
		}

		switch action {
		case actionQuit:
			return nil
		case actionGraph:
			graph, err := visualizer.GenerateMermaidWithOptions(configs.MustLoad(configs.Orchestrator),
				visualizer.DefaultOptions().WithCurrentState(player.Editor().Snapshot().Orchestrator))
			if err != nil {
				return err
			}

			fmt.Fprint(out, graph)

			continue
		}

		step, err := buildStep(action, player.Editor().Snapshot(), ask)
		if err != nil {
			return promptDone(err)
		}

		if err := applyAndReport(cmd, player, step); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		}
	}
}

func applyAndReport(cmd *cobra.Command, player *scenario.Player, step scenario.Step) error {
	failures, err := player.Apply(cmd.Context(), step)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	for _, f := range failures {
		fmt.Fprintln(out, "unmet:", f)
	}

	if step.Do != scenario.StepExpect {
		fmt.Fprint(out, describe(player.Editor().Snapshot()))
	}

	return nil
}

// buildStep asks for whatever the chosen input needs.
func buildStep(action string, snap editor.Snapshot, ask asker) (scenario.Step, error) {
	step := scenario.Step{Do: action}

	switch action {
	case scenario.StepClick, scenario.StepPress, scenario.StepRemove:
		ids := nodeIDs(snap)
		if len(ids) == 0 {
			return step, fmt.Errorf("%w: no nodes", scenario.ErrInvalidScenario)
		}

		node, err := ask.Select("Node", ids...)
		if err != nil {
			return step, err
		}

		step.Node = node
	case scenario.StepMove, scenario.StepRelease:
		x, err := ask.Float("X")
		if err != nil {
			return step, err
		}

		y, err := ask.Float("Y")
		if err != nil {
			return step, err
		}

		step.X, step.Y = &x, &y
	case scenario.StepWait:
		ms, err := ask.Float("Milliseconds")
		if err != nil {
			return step, err
		}

		step.Ms = int(ms)
	case scenario.StepAdd:
		id, err := ask.String("Node id")
		if err != nil {
			return step, err
		}

		x, err := ask.Float("X")
		if err != nil {
			return step, err
		}

		y, err := ask.Float("Y")
		if err != nil {
			return step, err
		}

		step.Node, step.X, step.Y = id, &x, &y
	}

	return step, nil
}

// promptDone ends the session quietly on Ctrl-C or end of input.
func promptDone(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

func nodeIDs(snap editor.Snapshot) []string {
	ids := make([]string, 0, len(snap.Nodes))
	for id := range snap.Nodes {
		ids = append(ids, id)
	}

	natsort.Sort(ids)

	return ids
}

func describe(snap editor.Snapshot) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "orchestrator=%s", snap.Orchestrator)

	if snap.Source != "" {
		fmt.Fprintf(&sb, " source=%s", snap.Source)
	}

	if snap.Hover != "" {
		fmt.Fprintf(&sb, " hover=%s", snap.Hover)
	}

	if snap.Selected != "" {
		fmt.Fprintf(&sb, " selected=%s", snap.Selected)
	}

	if snap.InCooldown {
		sb.WriteString(" cooldown")
	}

	if snap.Shift {
		sb.WriteString(" shift")
	}

	sb.WriteString("\n")

	for _, id := range nodeIDs(snap) {
		fmt.Fprintf(&sb, "  %s: %s\n", id, snap.Nodes[id])
	}

	return sb.String()
}
