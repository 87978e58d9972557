package main

import (
	"io"
	"slices"

	"github.com/amp-labs/diagramfsm/configs"
	"github.com/amp-labs/diagramfsm/entity"
	"github.com/amp-labs/diagramfsm/orchestrator"
	"github.com/spf13/cobra"
)

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Inspect and exercise the diagram editor state machines",
		Long: `fsmctl validates and draws the built-in machine configurations (or your
own YAML files), replays scripted interaction scenarios, drives an editor
from the terminal and serves editor sessions over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			configs.Register()
		},
	}

	root.SetOut(out)
	root.SetErr(errOut)

	root.AddCommand(
		newValidateCmd(),
		newGraphCmd(),
		newSimulateCmd(),
		newInteractiveCmd(),
		newServeCmd(),
	)

	return root
}

// knownHandlers lists every handler the editor registers on its machines.
func knownHandlers() []string {
	names := append(entity.HandlerNames(), orchestrator.HandlerNames()...)
	slices.Sort(names)

	return slices.Compact(names)
}
