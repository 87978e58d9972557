package main

import (
	"fmt"

	"github.com/amp-labs/diagramfsm/statemachine/visualizer"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	opts := visualizer.DefaultOptions()

	var hideActions, hideEvents bool

	cmd := &cobra.Command{
		Use:   "graph <name|path>",
		Short: "Print a configuration as a Mermaid state diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ShowActions = !hideActions
			opts.ShowEvents = !hideEvents

			graph, err := visualizer.GenerateMermaidFromFile(args[0], opts)
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), graph)

			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Direction, "direction", opts.Direction, "flow direction, TD or LR")
	flags.StringVar(&opts.Theme, "theme", opts.Theme, "mermaid theme: default, dark or forest")
	flags.StringVar(&opts.CurrentState, "current", "", "mark this state as the live one")
	flags.StringSliceVar(&opts.HighlightPath, "highlight", nil, "comma separated state path to highlight")
	flags.BoolVar(&hideActions, "no-actions", false, "omit onEnter actions")
	flags.BoolVar(&hideEvents, "no-events", false, "omit event labels")

	return cmd
}
