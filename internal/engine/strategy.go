package engine

import "templarr/internal/model"

// Action is what a scheduled check should do for one instance.
type Action string

const (
	// ActionApply runs plan and apply automatically.
	ActionApply Action = "apply"
	// ActionNotify surfaces the available update without applying.
	ActionNotify Action = "notify"
	// ActionNone does nothing; only explicit operator action syncs.
	ActionNone Action = "none"
)

// Decide maps the template's sync mode to a check-time action. Auto mode only
// auto-applies when the operator has zero outstanding customizations; any
// customization downgrades to notify so operator intent is never silently
// discarded.
func Decide(mode model.SyncMode, hasCustomizations bool) Action {
	switch mode {
	case model.SyncModeAuto:
		if hasCustomizations {
			return ActionNotify
		}
		return ActionApply
	case model.SyncModeNotify:
		return ActionNotify
	default:
		return ActionNone
	}
}

// Lifecycle returns the current sync lifecycle state for a (template,
// instance) pair. Pairs the engine has never touched are in sync until a
// check or apply observes otherwise.
func (e *ReconcileEngine) Lifecycle(templateID, instanceID string) model.SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok := e.states[stateKey(templateID, instanceID)]; ok {
		return state
	}
	return model.StateInSync
}

// advanceLifecycle feeds one event through the state machine and records the
// resulting state for the pair.
func (e *ReconcileEngine) advanceLifecycle(templateID, instanceID string, event model.Event) model.SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := stateKey(templateID, instanceID)
	current, ok := e.states[key]
	if !ok {
		current = model.StateInSync
	}
	next := model.Advance(current, event)
	e.states[key] = next
	return next
}

// resetLifecycle records a drift-free observation: wherever the pair was, it
// is in sync now.
func (e *ReconcileEngine) resetLifecycle(templateID, instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[stateKey(templateID, instanceID)] = model.StateInSync
}

func stateKey(templateID, instanceID string) string {
	return templateID + "/" + instanceID
}
