package entity

import (
	"context"
	"fmt"

	"github.com/amp-labs/diagramfsm/statemachine"
)

// flagHandlers maps each node handler to the flag it sets (add) or clears.
var flagHandlers = map[string]struct { //nolint:gochecknoglobals
	flag string
	add  bool
}{
	"selectHighlight":          {FlagSelected, true},
	"deselectHighlight":        {FlagSelected, false},
	"dragHighlight":            {FlagDragging, true},
	"clearDragHighlight":       {FlagDragging, false},
	"edgeSourceHighlight":      {FlagEdgeSource, true},
	"clearEdgeSourceHighlight": {FlagEdgeSource, false},
	"edgeTargetHighlight":      {FlagEdgeTarget, true},
	"clearEdgeTargetHighlight": {FlagEdgeTarget, false},
}

// HandlerNames lists the handlers every node machine registers.
func HandlerNames() []string {
	names := make([]string, 0, len(flagHandlers))
	for name := range flagHandlers {
		names = append(names, name)
	}

	return names
}

func registerHandlers(mgr *statemachine.Manager) {
	for name, h := range flagHandlers {
		mgr.RegisterHandler(name, flagHandler(h.flag, h.add))
	}
}

func flagHandler(flag string, add bool) statemachine.ActionHandler {
	return func(_ context.Context, run statemachine.ActionRun) error {
		if run.Target == nil {
			return fmt.Errorf("%w: no visual target for %s", ErrNoTarget, run.MachineID)
		}

		if add {
			run.Target.AddFlag(flag)
		} else {
			run.Target.RemoveFlag(flag)
		}

		return nil
	}
}
