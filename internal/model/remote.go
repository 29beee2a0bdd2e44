package model

import (
	"fmt"
	"time"
)

// RemoteRule is a classification rule as it exists on a remote instance.
// Managed is true when the rule was originally created by this reconciliation
// pipeline; foreign rules are never touched by a diff.
type RemoteRule struct {
	ConditionFlags map[string]bool
	ExternalID     string
	Name           string
	RemoteID       int64
	Score          int
	Managed        bool
}

// RemoteProfile is the scoring profile as it exists on a remote instance.
type RemoteProfile struct {
	Cutoff      string
	RemoteID    int64
	MinScore    int
	CutoffScore int
}

// RemoteState is a point-in-time snapshot of an instance's rules and profile.
// Managed rules are keyed by external id; foreign rules appear under their
// remote name since they carry no external id.
type RemoteState struct {
	FetchedAt time.Time
	Rules     map[string]RemoteRule
	Profile   RemoteProfile
}

// ManagedRule returns the managed remote rule with the given external id, or
// nil when the rule is absent or foreign.
func (s *RemoteState) ManagedRule(externalID string) *RemoteRule {
	rule, ok := s.Rules[externalID]
	if !ok || !rule.Managed {
		return nil
	}
	return &rule
}

// Instance identifies one remotely-managed media-automation instance.
type Instance struct {
	CreatedAt   time.Time
	ID          string
	Name        string
	URL         string
	APIKey      string
	ServiceKind string
}

// Validate ensures the instance has the fields needed to reach its API.
func (i *Instance) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("instance id is required")
	}
	if i.URL == "" {
		return fmt.Errorf("instance url is required")
	}
	if i.APIKey == "" {
		return fmt.Errorf("instance api key is required")
	}
	return nil
}
