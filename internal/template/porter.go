// Package template implements JSON import and export of templates, with
// field-level validation of incoming data before anything reaches the store.
package template

import (
	"encoding/json"
	"fmt"
	"time"

	"templarr/internal/model"
)

// Metadata is the optional descriptive envelope carried by exports.
type Metadata struct {
	Author   string   `json:"author,omitempty"`
	Category string   `json:"category,omitempty"`
	Notes    string   `json:"notes,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Wire representation of a template file.
type templateFile struct {
	Metadata Metadata     `json:"metadata,omitempty"`
	Template templateJSON `json:"template"`
}

type templateJSON struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	ServiceKind   string      `json:"serviceKind"`
	SourceVersion string      `json:"sourceVersion,omitempty"`
	Rules         []ruleJSON  `json:"rules"`
	Groups        []groupJSON `json:"groups,omitempty"`
	Profile       profileJSON `json:"scoringProfile"`
	Sync          syncJSON    `json:"syncSettings"`
}

type ruleJSON struct {
	ExternalID     string          `json:"externalId"`
	Name           string          `json:"name"`
	ScoreOverride  *int            `json:"scoreOverride,omitempty"`
	DefaultScore   int             `json:"defaultScore"`
	ConditionFlags map[string]bool `json:"conditionFlags,omitempty"`
	Origin         string          `json:"origin,omitempty"`
	Required       bool            `json:"required,omitempty"`
	Optional       bool            `json:"optional,omitempty"`
	Default        bool            `json:"default,omitempty"`
}

type groupJSON struct {
	ExternalID        string   `json:"externalId"`
	Name              string   `json:"name"`
	Enabled           bool     `json:"enabled"`
	Members           []string `json:"members"`
	MutuallyExclusive bool     `json:"mutuallyExclusive,omitempty"`
	DefaultMemberID   string   `json:"defaultMemberId,omitempty"`
}

type profileJSON struct {
	Cutoff      string `json:"cutoff"`
	MinScore    int    `json:"minScore"`
	CutoffScore int    `json:"cutoffScore"`
}

type syncJSON struct {
	Mode                string `json:"mode"`
	DeleteRemovedOnSync bool   `json:"deleteRemovedOnSync"`
}

// Severity classifies an import finding.
type Severity string

const (
	// SeverityError blocks the import.
	SeverityError Severity = "error"
	// SeverityWarning is reported but does not block.
	SeverityWarning Severity = "warning"
	// SeverityConflict is a structural contradiction; blocks the import.
	SeverityConflict Severity = "conflict"
)

// Issue is one field-level finding from import validation.
type Issue struct {
	Severity Severity
	Field    string
	Msg      string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Field, i.Msg)
}

// ImportResult carries the parsed template together with every finding.
type ImportResult struct {
	Template *model.Template
	Issues   []Issue
}

// OK reports whether the import has no blocking findings.
func (r *ImportResult) OK() bool {
	for _, issue := range r.Issues {
		if issue.Severity != SeverityWarning {
			return false
		}
	}
	return true
}

// Warnings returns the non-blocking findings.
func (r *ImportResult) Warnings() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			out = append(out, issue)
		}
	}
	return out
}

// Import parses a template file and validates its structure, reporting
// field-level errors, warnings, and conflicts. The returned template is only
// usable when OK() is true.
func Import(data []byte) (*ImportResult, error) {
	var file templateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}

	result := &ImportResult{}
	in := file.Template

	check := func(severity Severity, field, format string, args ...any) {
		result.Issues = append(result.Issues, Issue{
			Severity: severity,
			Field:    field,
			Msg:      fmt.Sprintf(format, args...),
		})
	}

	if in.ID == "" {
		check(SeverityError, "template.id", "missing")
	}
	if in.Name == "" {
		check(SeverityError, "template.name", "missing")
	}
	if in.ServiceKind == "" {
		check(SeverityWarning, "template.serviceKind", "missing; instance linking cannot verify service compatibility")
	}
	if len(in.Rules) == 0 {
		check(SeverityWarning, "template.rules", "template has no rules")
	}

	mode := model.SyncMode(in.Sync.Mode)
	switch mode {
	case model.SyncModeAuto, model.SyncModeManual, model.SyncModeNotify:
	case "":
		mode = model.SyncModeManual
	default:
		check(SeverityError, "syncSettings.mode", "unknown mode %q", in.Sync.Mode)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(in.Rules))
	rules := make([]model.ClassificationRule, 0, len(in.Rules))
	for i, raw := range in.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if raw.ExternalID == "" {
			check(SeverityError, field+".externalId", "missing")
			continue
		}
		if seen[raw.ExternalID] {
			check(SeverityConflict, field+".externalId", "duplicate id %q", raw.ExternalID)
			continue
		}
		seen[raw.ExternalID] = true

		if raw.Name == "" {
			check(SeverityError, field+".name", "missing")
		}
		if raw.ScoreOverride != nil {
			if err := model.ValidateScore(*raw.ScoreOverride); err != nil {
				check(SeverityError, field+".scoreOverride", "%v", err)
			}
		}
		if err := model.ValidateScore(raw.DefaultScore); err != nil {
			check(SeverityError, field+".defaultScore", "%v", err)
		}
		if raw.Required && raw.Optional {
			check(SeverityConflict, field, "rule is both required and optional")
		}

		origin := model.Origin(raw.Origin)
		if origin == "" {
			origin = model.OriginTemplate
		}
		rules = append(rules, model.ClassificationRule{
			ExternalID:     raw.ExternalID,
			Name:           raw.Name,
			ScoreOverride:  raw.ScoreOverride,
			DefaultScore:   raw.DefaultScore,
			ConditionFlags: raw.ConditionFlags,
			Origin:         origin,
			Required:       raw.Required,
			Optional:       raw.Optional,
			Default:        raw.Default,
			AddedAt:        now,
		})
	}

	groups := make([]model.RuleGroup, 0, len(in.Groups))
	for i, raw := range in.Groups {
		field := fmt.Sprintf("groups[%d]", i)
		if raw.ExternalID == "" {
			check(SeverityError, field+".externalId", "missing")
			continue
		}
		for _, member := range raw.Members {
			if !seen[member] {
				check(SeverityConflict, field+".members", "unknown rule %q", member)
			}
		}
		if raw.DefaultMemberID != "" {
			found := false
			for _, member := range raw.Members {
				if member == raw.DefaultMemberID {
					found = true
					break
				}
			}
			if !found {
				check(SeverityConflict, field+".defaultMemberId", "%q is not a group member", raw.DefaultMemberID)
			}
		}
		groups = append(groups, model.RuleGroup{
			ExternalID:        raw.ExternalID,
			Name:              raw.Name,
			Enabled:           raw.Enabled,
			Members:           raw.Members,
			MutuallyExclusive: raw.MutuallyExclusive,
			DefaultMemberID:   raw.DefaultMemberID,
		})
	}

	result.Template = &model.Template{
		ID:            in.ID,
		Name:          in.Name,
		ServiceKind:   in.ServiceKind,
		SourceVersion: in.SourceVersion,
		Items:         rules,
		Groups:        groups,
		Profile: model.ScoringProfile{
			Cutoff:      in.Profile.Cutoff,
			MinScore:    in.Profile.MinScore,
			CutoffScore: in.Profile.CutoffScore,
		},
		Sync: model.SyncSettings{
			Mode:                mode,
			DeleteRemovedOnSync: in.Sync.DeleteRemovedOnSync,
		},
	}
	return result, nil
}

// Export serializes a template with optional metadata.
func Export(t *model.Template, metadata Metadata) ([]byte, error) {
	out := templateFile{
		Metadata: metadata,
		Template: templateJSON{
			ID:            t.ID,
			Name:          t.Name,
			ServiceKind:   t.ServiceKind,
			SourceVersion: t.SourceVersion,
			Profile: profileJSON{
				Cutoff:      t.Profile.Cutoff,
				MinScore:    t.Profile.MinScore,
				CutoffScore: t.Profile.CutoffScore,
			},
			Sync: syncJSON{
				Mode:                string(t.Sync.Mode),
				DeleteRemovedOnSync: t.Sync.DeleteRemovedOnSync,
			},
		},
	}

	for i := range t.Items {
		rule := &t.Items[i]
		out.Template.Rules = append(out.Template.Rules, ruleJSON{
			ExternalID:     rule.ExternalID,
			Name:           rule.Name,
			ScoreOverride:  rule.ScoreOverride,
			DefaultScore:   rule.DefaultScore,
			ConditionFlags: rule.ConditionFlags,
			Origin:         string(rule.Origin),
			Required:       rule.Required,
			Optional:       rule.Optional,
			Default:        rule.Default,
		})
	}
	for i := range t.Groups {
		group := &t.Groups[i]
		out.Template.Groups = append(out.Template.Groups, groupJSON{
			ExternalID:        group.ExternalID,
			Name:              group.Name,
			Enabled:           group.Enabled,
			Members:           group.Members,
			MutuallyExclusive: group.MutuallyExclusive,
			DefaultMemberID:   group.DefaultMemberID,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return append(data, '\n'), nil
}
