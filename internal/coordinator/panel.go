package coordinator

import "github.com/jonathan/one-click-apply/internal/tabs"

// panelTransitions is the side-panel state machine. Panels are opt-in per tab:
// only a click on the action enables one.
var panelTransitions = map[EventKind]map[tabs.PanelState]tabs.PanelState{
	EventInstalled: {
		tabs.PanelDisabled: tabs.PanelDisabled,
		tabs.PanelEnabled:  tabs.PanelDisabled,
	},
	EventStartup: {
		tabs.PanelDisabled: tabs.PanelDisabled,
		tabs.PanelEnabled:  tabs.PanelDisabled,
	},
	EventTabCreated: {
		tabs.PanelDisabled: tabs.PanelDisabled,
		tabs.PanelEnabled:  tabs.PanelDisabled,
	},
	EventActionClicked: {
		tabs.PanelDisabled: tabs.PanelEnabled,
		tabs.PanelEnabled:  tabs.PanelEnabled,
	},
	EventTabRemoved: {
		tabs.PanelDisabled: tabs.PanelDisabled,
		tabs.PanelEnabled:  tabs.PanelDisabled,
	},
}

// transition returns the panel state after kind. Events outside the table leave the state unchanged.
func transition(state tabs.PanelState, kind EventKind) tabs.PanelState {
	if state == "" {
		state = tabs.PanelDisabled
	}
	if next, ok := panelTransitions[kind][state]; ok {
		return next
	}
	return state
}
