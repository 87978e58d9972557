package visualizer

// Options configures the visualization output.
type Options struct {
	// ShowActions lists onEnter actions in state nodes
	ShowActions bool

	// ShowEvents labels each transition with the events that map to it
	ShowEvents bool

	// Direction controls diagram flow: "TD" (top-down) or "LR" (left-right)
	Direction string

	// HighlightPath highlights a specific state path through the diagram
	HighlightPath []string

	// CurrentState marks the live state of a running machine
	CurrentState string

	// Theme controls the color scheme: "default", "dark", "forest"
	Theme string
}

// DefaultOptions returns sensible defaults for visualization.
func DefaultOptions() Options {
	return Options{
		ShowActions: true,
		ShowEvents:  true,
		Direction:   "TD",
		Theme:       "default",
	}
}

// WithShowActions enables/disables action details.
func (o Options) WithShowActions(show bool) Options {
	o.ShowActions = show

	return o
}

// WithShowEvents enables/disables event labels on transitions.
func (o Options) WithShowEvents(show bool) Options {
	o.ShowEvents = show

	return o
}

// WithDirection sets the diagram direction.
func (o Options) WithDirection(direction string) Options {
	o.Direction = direction

	return o
}

// WithHighlightPath sets states to highlight.
func (o Options) WithHighlightPath(path []string) Options {
	o.HighlightPath = path

	return o
}

// WithCurrentState marks state as the live one.
func (o Options) WithCurrentState(state string) Options {
	o.CurrentState = state

	return o
}

// WithTheme sets the color theme.
func (o Options) WithTheme(theme string) Options {
	o.Theme = theme

	return o
}
