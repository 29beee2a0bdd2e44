package model

import (
	"fmt"
	"sort"
)

// EffectiveRule is one rule's resolved target configuration.
type EffectiveRule struct {
	ConditionFlags map[string]bool
	ExternalID     string
	Name           string
	Origin         Origin
	Score          int
	Active         bool
	Required       bool
	Deprecated     bool
}

// EffectiveState is the conflict-free target configuration produced by merging
// template defaults with operator customizations.
type EffectiveState struct {
	Rules           map[string]EffectiveRule
	GroupSelections map[string]string
	Profile         ScoringProfile
	SourceVersion   string
}

// ActiveRules returns the active rules sorted by external id.
func (s *EffectiveState) ActiveRules() []EffectiveRule {
	out := make([]EffectiveRule, 0, len(s.Rules))
	for _, rule := range s.Rules {
		if rule.Active {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

// Conflict records a mutually-exclusive group with more than one active member.
type Conflict struct {
	GroupID         string
	ActiveMemberIDs []string
}

func (c Conflict) String() string {
	return fmt.Sprintf("group %s has %d active members: %v", c.GroupID, len(c.ActiveMemberIDs), c.ActiveMemberIDs)
}

// ConflictSet is zero or more conflicts. A non-empty set blocks apply but
// never blocks preview.
type ConflictSet []Conflict

// Empty reports whether the set has no conflicts.
func (s ConflictSet) Empty() bool { return len(s) == 0 }

// GroupIDs returns the offending group ids in order.
func (s ConflictSet) GroupIDs() []string {
	ids := make([]string, len(s))
	for i, c := range s {
		ids[i] = c.GroupID
	}
	return ids
}
