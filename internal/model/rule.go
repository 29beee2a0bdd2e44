package model

import (
	"fmt"
	"time"
)

// Origin indicates whether a rule came from the template source or was added
// by the operator.
type Origin string

const (
	// OriginTemplate marks rules that arrived with the template source.
	OriginTemplate Origin = "template"
	// OriginUserAdded marks rules the operator added by hand. These are never
	// auto-deleted, regardless of sync settings.
	OriginUserAdded Origin = "user_added"
)

// Score bounds accepted for any score or score override, inclusive.
const (
	MinScore = -10000
	MaxScore = 10000
)

// ClassificationRule is a named matching rule ("custom format") contributing a
// score to release selection. Identity is ExternalID, which is stable across
// source revisions.
type ClassificationRule struct {
	AddedAt          time.Time
	DeprecatedAt     *time.Time
	ScoreOverride    *int
	ExternalID       string
	Name             string
	DeprecatedReason string
	ConditionFlags   map[string]bool
	Origin           Origin
	DefaultScore     int
	Required         bool
	Optional         bool
	Default          bool
	Deprecated       bool
}

// Validate ensures the rule has valid identity, origin, and score values.
func (r *ClassificationRule) Validate() error {
	if r.ExternalID == "" {
		return fmt.Errorf("external id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch r.Origin {
	case OriginTemplate, OriginUserAdded:
	default:
		return fmt.Errorf("invalid origin %q", r.Origin)
	}
	if r.ScoreOverride != nil {
		if err := ValidateScore(*r.ScoreOverride); err != nil {
			return err
		}
	}
	if err := ValidateScore(r.DefaultScore); err != nil {
		return fmt.Errorf("default score: %w", err)
	}
	if r.Required && r.Optional {
		return fmt.Errorf("rule cannot be both required and optional")
	}
	return nil
}

// ValidateScore checks that a score is within the accepted range. The bounds
// are inclusive: exactly MinScore and MaxScore are accepted.
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("score %d out of range [%d, %d]", score, MinScore, MaxScore)
	}
	return nil
}

// RuleGroup is a named collection of related classification rules, optionally
// mutually exclusive.
type RuleGroup struct {
	ExternalID        string
	Name              string
	DefaultMemberID   string
	Members           []string
	Enabled           bool
	MutuallyExclusive bool
}

// Validate ensures the group has valid identity and a coherent default member.
func (g *RuleGroup) Validate() error {
	if g.ExternalID == "" {
		return fmt.Errorf("external id is required")
	}
	if g.Name == "" {
		return fmt.Errorf("name is required")
	}
	if g.DefaultMemberID != "" && !g.HasMember(g.DefaultMemberID) {
		return fmt.Errorf("default member %q is not a group member", g.DefaultMemberID)
	}
	return nil
}

// HasMember reports whether the given rule id belongs to this group.
func (g *RuleGroup) HasMember(externalID string) bool {
	for _, m := range g.Members {
		if m == externalID {
			return true
		}
	}
	return false
}
