package model

// SyncState is where a (template, instance) pair sits in the sync lifecycle.
type SyncState string

const (
	// StateInSync means the instance matches the template's current source.
	StateInSync SyncState = "in_sync"
	// StateUpdateAvailable means a newer source version or drift was detected.
	StateUpdateAvailable SyncState = "update_available"
	// StateSyncing means an apply pass is in flight.
	StateSyncing SyncState = "syncing"
	// StateFailed means the last apply pass failed. Non-terminal: the next
	// scheduled check re-attempts from UpdateAvailable.
	StateFailed SyncState = "failed"
)

// Event is a sync lifecycle transition trigger.
type Event string

const (
	// EventUpdateDetected fires when a check finds drift or a new source version.
	EventUpdateDetected Event = "update_detected"
	// EventSyncStarted fires when an apply pass begins.
	EventSyncStarted Event = "sync_started"
	// EventSyncSucceeded fires when an apply pass completes fully.
	EventSyncSucceeded Event = "sync_succeeded"
	// EventSyncFailed fires when an apply pass fails or partially fails.
	EventSyncFailed Event = "sync_failed"
	// EventCheckScheduled fires on every periodic check tick.
	EventCheckScheduled Event = "check_scheduled"
)

// Advance returns the next state for an event. Unknown combinations leave the
// state unchanged.
func Advance(state SyncState, event Event) SyncState {
	switch state {
	case StateInSync:
		if event == EventUpdateDetected {
			return StateUpdateAvailable
		}
	case StateUpdateAvailable:
		if event == EventSyncStarted {
			return StateSyncing
		}
	case StateSyncing:
		switch event {
		case EventSyncSucceeded:
			return StateInSync
		case EventSyncFailed:
			return StateFailed
		}
	case StateFailed:
		if event == EventCheckScheduled {
			return StateUpdateAvailable
		}
	}
	return state
}
