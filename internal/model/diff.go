package model

import "fmt"

// ProfileAction indicates whether the scoring profile needs an update.
type ProfileAction string

const (
	// ProfileNoChange means the remote profile already matches the target.
	ProfileNoChange ProfileAction = "no_change"
	// ProfileUpdate means one or more profile fields differ.
	ProfileUpdate ProfileAction = "update"
)

// RuleCreate is a planned creation of a rule absent from the remote instance.
type RuleCreate struct {
	ConditionFlags map[string]bool
	ExternalID     string
	Name           string
	Score          int
}

// RuleUpdate is a planned update of a remote rule that drifted from the
// target. Old values are carried for auditability.
type RuleUpdate struct {
	OldConditions     map[string]bool
	NewConditions     map[string]bool
	ExternalID        string
	Name              string
	RemoteID          int64
	OldScore          int
	NewScore          int
	ScoreChanged      bool
	ConditionsChanged bool
}

// RuleDelete is a planned deletion of a managed remote rule no longer in the
// active target set.
type RuleDelete struct {
	ExternalID string
	Name       string
	RemoteID   int64
}

// FieldChange records one profile field's old and new values.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// ProfileDiff describes whether and how the scoring profile must change.
// RemoteID is the instance's own id for the profile being updated.
type ProfileDiff struct {
	Action   ProfileAction
	RemoteID int64
	Changes  []FieldChange
}

// PlanSummary aggregates a plan's change counts. TotalChanges == 0 is the
// canonical "already in sync" signal and is always treated as success.
type PlanSummary struct {
	Created      int
	Updated      int
	Deleted      int
	ScoreChanges int
	TotalChanges int
}

// DiffPlan is the computed set of operations needed to align a remote
// instance with an effective state. It is an immutable snapshot, recomputed on
// every preview; it is never persisted and never partially applied without
// being re-derived.
type DiffPlan struct {
	InstanceID   string
	TemplateID   string
	BasisVersion string
	Creates      []RuleCreate
	Updates      []RuleUpdate
	Deletes      []RuleDelete
	Profile      ProfileDiff
	Summary      PlanSummary
	Conflicts    ConflictSet
	Warnings     []string
}

// InSync reports whether the plan carries no changes at all.
func (p *DiffPlan) InSync() bool { return p.Summary.TotalChanges == 0 }

// Describe returns a one-line human summary of the plan.
func (p *DiffPlan) Describe() string {
	if p.InSync() {
		return "in sync"
	}
	return fmt.Sprintf("%d to create, %d to update, %d to delete, profile %s",
		p.Summary.Created, p.Summary.Updated, p.Summary.Deleted, p.Profile.Action)
}
