package model

import "time"

// TrackedApplication records that a template has been applied to an instance.
// Created on first successful apply and updated in place on re-apply; its
// presence distinguishes "apply" from "re-apply".
type TrackedApplication struct {
	FirstAppliedAt time.Time
	LastAppliedAt  time.Time
	InstanceID     string
	TemplateID     string
	ID             int64
}

// CheckReport is the per-instance result of a scheduled template check,
// reported back to the scheduler layer for observability.
type CheckReport struct {
	InstanceID string
	State      SyncState
	Conflicts  ConflictSet
	Errors     []string
	IsUpToDate bool
	Applied    bool
}
