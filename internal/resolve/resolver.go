// Package resolve merges template defaults with operator customizations into
// an effective target state, and validates group constraints against it.
package resolve

import (
	"sort"

	"templarr/internal/common"
	"templarr/internal/model"
)

// Resolve computes the effective target state for a template under the given
// operator customizations. It is a pure, total function: identical inputs
// always yield identical output, and iteration order never affects the result
// (tie-breaks use stable external ids and declared member order).
//
// Resolution proceeds in four passes:
//
//  1. Every rule starts from its customization: active unless excluded, score
//     from the customization override, else the template override, else the
//     source default.
//  2. Rules flagged optional by the source (and not flagged default) are
//     excluded unless the operator explicitly included them.
//  3. Each enabled mutually-exclusive group selects exactly one default
//     member for every member the operator has no explicit opinion on.
//  4. Required rules are forced active regardless of anything above.
//  5. Deprecated rules are forced inactive: they left the source, so they are
//     never part of the target state. The delete gate decides whether their
//     remote copies go away or stay untouched.
//
// A score override on an excluded rule is retained but ignored; it reapplies
// if the rule becomes active again.
//
// Customizations referencing rules absent from the current source are skipped
// and reported as UnresolvedItemError values; they never fail the resolution.
func Resolve(template *model.Template, customizations model.Customizations) (*model.EffectiveState, []error) {
	state := &model.EffectiveState{
		Rules:           make(map[string]model.EffectiveRule, len(template.Items)),
		GroupSelections: make(map[string]string),
		Profile:         template.Profile,
		SourceVersion:   template.SourceVersion,
	}

	var warnings []error
	for _, id := range sortedCustomizationIDs(customizations) {
		if template.Rule(id) == nil {
			warnings = append(warnings, &common.UnresolvedItemError{ExternalID: id})
		}
	}

	// Pass 1: per-rule merge.
	for i := range template.Items {
		rule := &template.Items[i]
		cust := customizations[rule.ExternalID]

		active := true
		if cust.Excluded != nil {
			active = !*cust.Excluded
		}

		state.Rules[rule.ExternalID] = model.EffectiveRule{
			ExternalID:     rule.ExternalID,
			Name:           rule.Name,
			Origin:         rule.Origin,
			Active:         active,
			Score:          effectiveScore(rule, cust),
			ConditionFlags: rule.ConditionFlags,
			Required:       rule.Required,
			Deprecated:     rule.Deprecated,
		}
	}

	// Pass 2: optional rules default to excluded.
	for i := range template.Items {
		rule := &template.Items[i]
		if !rule.Optional || rule.Default {
			continue
		}
		if _, explicit := customizations[rule.ExternalID]; explicit && customizations[rule.ExternalID].Excluded != nil {
			continue
		}
		er := state.Rules[rule.ExternalID]
		er.Active = false
		state.Rules[rule.ExternalID] = er
	}

	// Pass 3: mutually-exclusive group selection, groups in stable id order.
	groups := append([]model.RuleGroup(nil), template.Groups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].ExternalID < groups[j].ExternalID })
	for i := range groups {
		resolveGroup(template, &groups[i], customizations, state)
	}

	// Pass 4: required rules can never be excluded.
	for i := range template.Items {
		rule := &template.Items[i]
		if !rule.Required {
			continue
		}
		er := state.Rules[rule.ExternalID]
		er.Active = true
		state.Rules[rule.ExternalID] = er
	}

	// Pass 5: deprecated rules are out of the source and out of the target
	// state, even when required or explicitly included.
	for i := range template.Items {
		rule := &template.Items[i]
		if !rule.Deprecated {
			continue
		}
		er := state.Rules[rule.ExternalID]
		er.Active = false
		state.Rules[rule.ExternalID] = er
	}

	return state, warnings
}

// resolveGroup applies default selection to one group. The operator's explicit
// per-member customizations always take precedence; an explicit include on any
// member replaces the source-flagged default selection entirely, and
// explicitly excluding the default without selecting a sibling leaves the
// group with zero active members, which is valid.
func resolveGroup(template *model.Template, group *model.RuleGroup, customizations model.Customizations, state *model.EffectiveState) {
	if !group.Enabled || !group.MutuallyExclusive {
		return
	}

	explicitInclude := false
	for _, member := range group.Members {
		cust, ok := customizations[member]
		if ok && cust.Excluded != nil && !*cust.Excluded {
			explicitInclude = true
			break
		}
	}

	defaultID := ""
	if !explicitInclude {
		defaultID = defaultMember(template, group)
	}

	for _, member := range group.Members {
		cust, ok := customizations[member]
		if ok && cust.Excluded != nil {
			continue // operator decision wins
		}
		er, known := state.Rules[member]
		if !known {
			continue
		}
		er.Active = member == defaultID
		state.Rules[member] = er
	}

	state.GroupSelections[group.ExternalID] = singleActiveMember(group, state)
}

// defaultMember picks the group's default: the explicitly designated member,
// else the first member flagged default by the source, else the first member
// in declared order. Deprecated members are never eligible; a deprecated
// default falls through to the next live candidate.
func defaultMember(template *model.Template, group *model.RuleGroup) string {
	eligible := func(member string) bool {
		rule := template.Rule(member)
		return rule != nil && !rule.Deprecated
	}
	if group.DefaultMemberID != "" && eligible(group.DefaultMemberID) {
		return group.DefaultMemberID
	}
	for _, member := range group.Members {
		if rule := template.Rule(member); rule != nil && rule.Default && !rule.Deprecated {
			return member
		}
	}
	for _, member := range group.Members {
		if eligible(member) {
			return member
		}
	}
	return ""
}

func singleActiveMember(group *model.RuleGroup, state *model.EffectiveState) string {
	selected := ""
	for _, member := range group.Members {
		if er, ok := state.Rules[member]; ok && er.Active {
			if selected != "" {
				return selected // more than one; validator reports it
			}
			selected = member
		}
	}
	return selected
}

func effectiveScore(rule *model.ClassificationRule, cust model.Customization) int {
	if cust.ScoreOverride != nil {
		return *cust.ScoreOverride
	}
	if rule.ScoreOverride != nil {
		return *rule.ScoreOverride
	}
	return rule.DefaultScore
}

func sortedCustomizationIDs(customizations model.Customizations) []string {
	ids := make([]string, 0, len(customizations))
	for id := range customizations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
