package resolve

import (
	"sort"

	"templarr/internal/model"
)

// Validate checks the mutually-exclusive invariant against a resolved state.
// It never fails: it returns zero or more conflicts, one per enabled
// mutually-exclusive group with more than one active member. A non-empty set
// does not block diff computation; it blocks apply.
func Validate(state *model.EffectiveState, groups []model.RuleGroup) model.ConflictSet {
	var conflicts model.ConflictSet

	ordered := append([]model.RuleGroup(nil), groups...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ExternalID < ordered[j].ExternalID })

	for i := range ordered {
		group := &ordered[i]
		if !group.Enabled || !group.MutuallyExclusive {
			continue
		}

		var active []string
		for _, member := range group.Members {
			if er, ok := state.Rules[member]; ok && er.Active {
				active = append(active, member)
			}
		}
		if len(active) > 1 {
			sort.Strings(active)
			conflicts = append(conflicts, model.Conflict{
				GroupID:         group.ExternalID,
				ActiveMemberIDs: active,
			})
		}
	}

	return conflicts
}
