package entity

// States of the entity configuration.
const (
	StateIdle       = "idle"
	StateSelected   = "selected"
	StateDragging   = "dragging"
	StateScaling    = "scaling"
	StateEdgeSource = "edgeSource"
	StateEdgeTarget = "edgeTarget"
	StateCooldown   = "cooldown"
)

// Logical actions other packages test for.
const (
	ActionSelect    = "select"
	ActionStartEdge = "startEdge"
	ActionStartDrag = "startDrag"
)

// Technical events understood by the entity configuration.
const (
	EventMouseUp             = "mouseUp"
	EventDragStart           = "dragStart"
	EventEdgeCreationStarted = "edgeCreationStarted"
	EventEdgeTargetHover     = "edgeTargetHover"
	EventEdgeTargetLeave     = "edgeTargetLeave"
	EventEdgeCancelled       = "edgeCancelled"
	EventEdgeCompleted       = "edgeCompleted"
	EventEscapeKey           = "escapeKey"
	EventBackgroundClicked   = "backgroundClicked"
	EventDeselect            = "deselect"
)

// Visual flags set on nodes.
const (
	FlagSelected   = "selected"
	FlagDragging   = "dragging"
	FlagScaling    = "scaling"
	FlagEdgeSource = "edge-source"
	FlagEdgeTarget = "edge-target-highlight"
	FlagCooldown   = "cooldown"
)

// Event data keys read by the entity conditions.
const (
	DataIsClick            = "isClick"
	DataInEdgeCreationMode = "inEdgeCreationMode"
	DataScaleHandle        = "scaleHandle"
	DataSourcePolicy       = "sourcePolicy"
	DataDistanceMoved      = "distanceMoved"
	DataTimeDiff           = "timeDiff"
)
