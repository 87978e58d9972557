package orchestrator

import (
	"context"
	"fmt"

	"github.com/amp-labs/diagramfsm/diagram"
	"github.com/amp-labs/diagramfsm/entity"
	"github.com/amp-labs/diagramfsm/logger"
	"github.com/amp-labs/diagramfsm/statemachine"
)

// HandlerNames lists the handlers the orchestrator machine registers.
func HandlerNames() []string {
	return []string{
		"beginEdgeCreation",
		"createPreviewEdge",
		"enableEdgeTargetHighlighting",
		"setCrosshairCursor",
		"finishEdgeCreation",
		"removePreviewEdge",
		"disableEdgeTargetHighlighting",
		"resetCursor",
	}
}

func (o *Orchestrator) registerHandlers() {
	o.machine.RegisterHandler("beginEdgeCreation", o.beginEdgeCreation)
	o.machine.RegisterHandler("createPreviewEdge", o.createPreviewEdge)
	o.machine.RegisterHandler("enableEdgeTargetHighlighting", o.enableTargetHighlighting)
	o.machine.RegisterHandler("setCrosshairCursor", func(context.Context, statemachine.ActionRun) error {
		o.scene.SetCursor(diagram.CursorCrosshair)

		return nil
	})
	o.machine.RegisterHandler("finishEdgeCreation", o.finishEdgeCreation)
	o.machine.RegisterHandler("removePreviewEdge", o.removePreviewEdge)
	o.machine.RegisterHandler("disableEdgeTargetHighlighting", o.disableTargetHighlighting)
	o.machine.RegisterHandler("resetCursor", func(context.Context, statemachine.ActionRun) error {
		o.scene.SetCursor(diagram.CursorDefault)

		return nil
	})
}

func (o *Orchestrator) beginEdgeCreation(ctx context.Context, run statemachine.ActionRun) error {
	source, _ := run.Data[DataSource].(string)

	o.mu.Lock()
	o.current = gesture{source: source, startedAt: o.opts.clock.Now()}
	o.mu.Unlock()

	if source == "" {
		return fmt.Errorf("%w: edge creation entered without a source", statemachine.ErrInvalidActionSpec)
	}

	if !o.entities.HandleEvent(ctx, source, entity.EventEdgeCreationStarted, nil) {
		logger.Get(ctx).Warn("Edge source refused to start", "source", source)
	}

	reason, _ := run.Data[DataReason].(string)
	logger.Get(ctx).Debug("Edge creation started", "source", source, "reason", reason)

	return nil
}

func (o *Orchestrator) createPreviewEdge(ctx context.Context, _ statemachine.ActionRun) error {
	o.mu.Lock()
	source := o.current.source
	o.mu.Unlock()

	if source == "" {
		return nil
	}

	preview := o.scene.CreatePreview(ctx, source)

	if center, _, ok := o.scene.Center(source); ok {
		preview.Update(center, center)
	}

	o.mu.Lock()
	o.current.preview = preview
	o.mu.Unlock()

	return nil
}

func (o *Orchestrator) enableTargetHighlighting(context.Context, statemachine.ActionRun) error {
	o.mu.Lock()
	source := o.current.source
	o.mu.Unlock()

	for _, id := range o.entities.Nodes() {
		if id != source {
			o.scene.AddFlag(id, FlagEdgeCandidate)
		}
	}

	return nil
}

func (o *Orchestrator) disableTargetHighlighting(context.Context, statemachine.ActionRun) error {
	for _, id := range o.entities.Nodes() {
		o.scene.RemoveFlag(id, FlagEdgeCandidate)
	}

	return nil
}

// finishEdgeCreation settles the node machines when edgeCreation is left.
// A completeEdge exit commits; every other exit, forced ones included,
// cancels and opens the cooldown window.
func (o *Orchestrator) finishEdgeCreation(ctx context.Context, run statemachine.ActionRun) error {
	o.mu.Lock()
	g := o.current
	o.current = gesture{preview: g.preview}
	o.mu.Unlock()

	elapsed := o.opts.clock.Now().Sub(g.startedAt).Seconds()

	if run.Trigger == ActionCompleteEdge && g.target != "" {
		outcome := o.commit(ctx, g)
		edgeOutcomeTotal.WithLabelValues(outcome).Inc()
		edgeGestureDuration.WithLabelValues(outcome).Observe(elapsed)

		return nil
	}

	o.entities.HandleEvent(ctx, g.source, entity.EventEdgeCancelled, nil)

	if g.hover != "" {
		o.entities.HandleEvent(ctx, g.hover, entity.EventEdgeCancelled, nil)
	}

	o.cooldownUntil.Store(o.opts.clock.Now().Add(o.opts.cooldownWindow))

	edgeOutcomeTotal.WithLabelValues(outcomeCancelled).Inc()
	edgeGestureDuration.WithLabelValues(outcomeCancelled).Observe(elapsed)

	reason, _ := run.Data[DataReason].(string)
	logger.Get(ctx).Debug("Edge creation cancelled", "source", g.source, "trigger", run.Trigger, "reason", reason)

	return nil
}

func (o *Orchestrator) commit(ctx context.Context, g gesture) string {
	o.entities.HandleEvent(ctx, g.source, entity.EventEdgeCompleted, map[string]any{
		entity.DataSourcePolicy: string(o.opts.policy),
	})

	if g.hover != "" && g.hover != g.target {
		o.entities.HandleEvent(ctx, g.hover, entity.EventEdgeTargetLeave, nil)
	}

	if g.hover != g.target {
		o.entities.HandleEvent(ctx, g.target, entity.EventEdgeTargetHover, nil)
	}

	o.entities.HandleEvent(ctx, g.target, entity.EventEdgeCompleted, nil)

	edge, err := o.scene.CreateEdge(ctx, g.source, g.target)
	if err != nil {
		err = logger.AnnotateError(err, "source", g.source, "target", g.target)
		logger.Get(ctx).Error("Failed to create edge", "error", err)

		return outcomeFailed
	}

	o.mu.Lock()
	o.lastEdge = &edge
	o.mu.Unlock()

	logger.Get(ctx).Info("Edge created", "edge", edge.ID, "source", edge.Source, "target", edge.Target)

	return outcomeCommitted
}

func (o *Orchestrator) removePreviewEdge(context.Context, statemachine.ActionRun) error {
	o.mu.Lock()
	preview := o.current.preview
	o.current.preview = nil
	o.mu.Unlock()

	if preview != nil {
		preview.Remove()
	}

	return nil
}
