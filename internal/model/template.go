package model

import (
	"fmt"
	"time"
)

// SyncMode controls how a template reacts when a new source version is detected.
type SyncMode string

const (
	// SyncModeAuto applies new source versions automatically when no operator
	// customizations exist; otherwise it downgrades to notify behavior.
	SyncModeAuto SyncMode = "auto"
	// SyncModeManual never syncs without an explicit operator action.
	SyncModeManual SyncMode = "manual"
	// SyncModeNotify surfaces available updates but never applies them.
	SyncModeNotify SyncMode = "notify"
)

// SyncSettings holds per-template sync behavior.
type SyncSettings struct {
	Mode                SyncMode
	DeleteRemovedOnSync bool
}

// Validate ensures the sync settings are well-formed.
func (s *SyncSettings) Validate() error {
	switch s.Mode {
	case SyncModeAuto, SyncModeManual, SyncModeNotify:
		return nil
	default:
		return fmt.Errorf("invalid sync mode %q", s.Mode)
	}
}

// ScoringProfile holds the release-ranking thresholds a template carries.
type ScoringProfile struct {
	Cutoff      string
	MinScore    int
	CutoffScore int
}

// Template is a versioned bundle of classification rules, rule groups, and a
// scoring profile. The reconciliation engine only ever reads templates; all
// mutation goes through explicit store operations.
type Template struct {
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ID            string
	Name          string
	ServiceKind   string
	SourceVersion string
	Items         []ClassificationRule
	Groups        []RuleGroup
	Profile       ScoringProfile
	Sync          SyncSettings
}

// Validate checks the template for structural problems: missing identifiers,
// duplicate rule ids, and group members that reference unknown rules.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if err := t.Sync.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(t.Items))
	for i := range t.Items {
		rule := &t.Items[i]
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule %q: %w", rule.ExternalID, err)
		}
		if seen[rule.ExternalID] {
			return fmt.Errorf("duplicate rule id %q", rule.ExternalID)
		}
		seen[rule.ExternalID] = true
	}

	for i := range t.Groups {
		group := &t.Groups[i]
		if err := group.Validate(); err != nil {
			return fmt.Errorf("group %q: %w", group.ExternalID, err)
		}
		for _, member := range group.Members {
			if !seen[member] {
				return fmt.Errorf("group %q references unknown rule %q", group.ExternalID, member)
			}
		}
	}

	return nil
}

// Rule returns the rule with the given external id, or nil.
func (t *Template) Rule(externalID string) *ClassificationRule {
	for i := range t.Items {
		if t.Items[i].ExternalID == externalID {
			return &t.Items[i]
		}
	}
	return nil
}

// Group returns the group with the given external id, or nil.
func (t *Template) Group(externalID string) *RuleGroup {
	for i := range t.Groups {
		if t.Groups[i].ExternalID == externalID {
			return &t.Groups[i]
		}
	}
	return nil
}
