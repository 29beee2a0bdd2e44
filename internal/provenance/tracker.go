// Package provenance classifies template rules as template-origin or
// user-added, and active or deprecated, across repeated syncs.
package provenance

import (
	"sort"
	"time"

	"templarr/internal/model"
)

// Snapshot is the set of rule ids present in the latest template source.
type Snapshot struct {
	RuleIDs map[string]bool
	Version string
}

// SweepResult lists the provenance changes one sweep produced.
type SweepResult struct {
	// NewlyDeprecated are rules absent from the latest source snapshot.
	NewlyDeprecated []string
	// Reactivated are previously deprecated rules present again upstream.
	Reactivated []string
	// Removable are deprecated template-origin rules that the next
	// successful apply pass may delete, because deleteRemovedOnSync is set.
	// User-added rules are never listed here, under any setting.
	Removable []string
}

// Changed reports whether the sweep altered any rule's provenance.
func (r SweepResult) Changed() bool {
	return len(r.NewlyDeprecated) > 0 || len(r.Reactivated) > 0
}

// Sweep marks rules deprecated when absent from the latest source snapshot
// and reactivates rules that reappeared. Detection never deletes anything:
// removal is a separate decision taken by the apply pass, and only for
// template-origin rules with deleteRemovedOnSync enabled. User-added rules
// are permanently retained regardless of any setting.
//
// The template's rules are updated in place; the caller persists whichever
// rules the result names.
func Sweep(template *model.Template, snapshot Snapshot, now time.Time) SweepResult {
	var result SweepResult

	for i := range template.Items {
		rule := &template.Items[i]
		if rule.Origin == model.OriginUserAdded {
			continue // not governed by the upstream source
		}

		present := snapshot.RuleIDs[rule.ExternalID]
		switch {
		case !present && !rule.Deprecated:
			rule.Deprecated = true
			at := now
			rule.DeprecatedAt = &at
			rule.DeprecatedReason = "removed from source version " + snapshot.Version
			result.NewlyDeprecated = append(result.NewlyDeprecated, rule.ExternalID)
		case present && rule.Deprecated:
			rule.Deprecated = false
			rule.DeprecatedAt = nil
			rule.DeprecatedReason = ""
			result.Reactivated = append(result.Reactivated, rule.ExternalID)
		}
	}

	if template.Sync.DeleteRemovedOnSync {
		for i := range template.Items {
			rule := &template.Items[i]
			if rule.Deprecated && rule.Origin == model.OriginTemplate {
				result.Removable = append(result.Removable, rule.ExternalID)
			}
		}
	}

	sort.Strings(result.NewlyDeprecated)
	sort.Strings(result.Reactivated)
	sort.Strings(result.Removable)
	return result
}
