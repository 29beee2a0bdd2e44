// Package diff computes the minimal change plan that aligns a remote
// instance with an effective target state.
package diff

import (
	"sort"
	"strconv"

	"templarr/internal/model"
)

// Options tunes plan computation for one (template, instance) pair.
type Options struct {
	// ProfileOverride replaces the effective state's scoring profile as the
	// comparison target, for instances carrying an InstanceOverride.
	ProfileOverride *model.ScoringProfile
	// DeleteRemovedOnSync permits deletes of managed remote rules that are no
	// longer in the active target set. When false those rules are left
	// untouched. Foreign remote rules are never touched either way.
	DeleteRemovedOnSync bool
}

// Plan compares an effective target state against a remote snapshot and
// returns the change plan. Pure: no network, no side effects, deterministic
// output ordering by external id. A plan with TotalChanges == 0 is the
// canonical "already in sync" signal and must be treated as success.
func Plan(effective *model.EffectiveState, remote *model.RemoteState, opts Options) *model.DiffPlan {
	plan := &model.DiffPlan{
		BasisVersion: effective.SourceVersion,
		Profile:      model.ProfileDiff{Action: model.ProfileNoChange},
	}

	for _, target := range effective.ActiveRules() {
		current := remote.ManagedRule(target.ExternalID)
		if current == nil {
			plan.Creates = append(plan.Creates, model.RuleCreate{
				ExternalID:     target.ExternalID,
				Name:           target.Name,
				Score:          target.Score,
				ConditionFlags: target.ConditionFlags,
			})
			continue
		}

		scoreChanged := current.Score != target.Score
		conditionsChanged := !flagsEqual(current.ConditionFlags, target.ConditionFlags)
		if !scoreChanged && !conditionsChanged {
			continue
		}
		plan.Updates = append(plan.Updates, model.RuleUpdate{
			ExternalID:        target.ExternalID,
			Name:              target.Name,
			RemoteID:          current.RemoteID,
			OldScore:          current.Score,
			NewScore:          target.Score,
			OldConditions:     current.ConditionFlags,
			NewConditions:     target.ConditionFlags,
			ScoreChanged:      scoreChanged,
			ConditionsChanged: conditionsChanged,
		})
	}

	if opts.DeleteRemovedOnSync {
		plan.Deletes = planDeletes(effective, remote)
	}

	target := effective.Profile
	if opts.ProfileOverride != nil {
		target = *opts.ProfileOverride
	}
	plan.Profile = profileDiff(target, remote.Profile)

	plan.Summary = summarize(plan)
	return plan
}

// planDeletes finds managed remote rules outside the active target set.
// Rules the pipeline never created are foreign and stay untouched, and
// user-added rules never reach the delete diff regardless of sync settings.
func planDeletes(effective *model.EffectiveState, remote *model.RemoteState) []model.RuleDelete {
	var deletes []model.RuleDelete
	for key, current := range remote.Rules {
		if !current.Managed {
			continue
		}
		if target, ok := effective.Rules[key]; ok {
			if target.Active || target.Origin == model.OriginUserAdded {
				continue
			}
		}
		deletes = append(deletes, model.RuleDelete{
			ExternalID: current.ExternalID,
			Name:       current.Name,
			RemoteID:   current.RemoteID,
		})
	}
	sort.Slice(deletes, func(i, j int) bool { return deletes[i].ExternalID < deletes[j].ExternalID })
	return deletes
}

// profileDiff compares scoring profile fields exactly; scores are integers so
// no epsilon applies.
func profileDiff(target model.ScoringProfile, current model.RemoteProfile) model.ProfileDiff {
	var changes []model.FieldChange
	if target.Cutoff != current.Cutoff {
		changes = append(changes, model.FieldChange{Field: "cutoff", Old: current.Cutoff, New: target.Cutoff})
	}
	if target.MinScore != current.MinScore {
		changes = append(changes, model.FieldChange{
			Field: "minScore",
			Old:   strconv.Itoa(current.MinScore),
			New:   strconv.Itoa(target.MinScore),
		})
	}
	if target.CutoffScore != current.CutoffScore {
		changes = append(changes, model.FieldChange{
			Field: "cutoffScore",
			Old:   strconv.Itoa(current.CutoffScore),
			New:   strconv.Itoa(target.CutoffScore),
		})
	}
	if len(changes) == 0 {
		return model.ProfileDiff{Action: model.ProfileNoChange, RemoteID: current.RemoteID}
	}
	return model.ProfileDiff{Action: model.ProfileUpdate, RemoteID: current.RemoteID, Changes: changes}
}

func summarize(plan *model.DiffPlan) model.PlanSummary {
	summary := model.PlanSummary{
		Created: len(plan.Creates),
		Updated: len(plan.Updates),
		Deleted: len(plan.Deletes),
	}
	for _, update := range plan.Updates {
		if update.ScoreChanged {
			summary.ScoreChanges++
		}
	}
	summary.TotalChanges = summary.Created + summary.Updated + summary.Deleted
	if plan.Profile.Action == model.ProfileUpdate {
		summary.TotalChanges++
	}
	return summary
}

func flagsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
