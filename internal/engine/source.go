package engine

import (
	"context"
	"fmt"
	"log/slog"

	"templarr/internal/model"
	"templarr/internal/provenance"
)

// SyncSource merges a new source revision of a template into the stored one,
// preserving operator provenance: user-added rules are kept untouched,
// existing template rules pick up the source's new defaults, rules absent
// from the new revision are marked deprecated (never deleted here), and
// previously deprecated rules that reappeared are reactivated.
func (e *ReconcileEngine) SyncSource(ctx context.Context, incoming *model.Template) (provenance.SweepResult, error) {
	if err := incoming.Validate(); err != nil {
		return provenance.SweepResult{}, fmt.Errorf("invalid source template: %w", err)
	}

	current, err := e.storage.GetTemplate(ctx, incoming.ID)
	if err != nil {
		return provenance.SweepResult{}, fmt.Errorf("failed to load template %s: %w", incoming.ID, err)
	}

	snapshot := provenance.Snapshot{
		Version: incoming.SourceVersion,
		RuleIDs: make(map[string]bool, len(incoming.Items)),
	}

	// Refresh existing template-origin rules and collect additions.
	for i := range incoming.Items {
		source := &incoming.Items[i]
		snapshot.RuleIDs[source.ExternalID] = true

		existing := current.Rule(source.ExternalID)
		if existing == nil {
			added := *source
			added.Origin = model.OriginTemplate
			added.AddedAt = e.now()
			current.Items = append(current.Items, added)
			continue
		}
		existing.Name = source.Name
		existing.DefaultScore = source.DefaultScore
		existing.ScoreOverride = source.ScoreOverride
		existing.ConditionFlags = source.ConditionFlags
		existing.Required = source.Required
		existing.Optional = source.Optional
		existing.Default = source.Default
	}

	result := provenance.Sweep(current, snapshot, e.now())

	current.Groups = incoming.Groups
	current.Profile = incoming.Profile
	current.SourceVersion = incoming.SourceVersion

	if err := e.storage.SaveTemplate(ctx, current); err != nil {
		return result, fmt.Errorf("failed to save template: %w", err)
	}

	slog.Info("Source synced",
		"template", current.ID,
		"version", current.SourceVersion,
		"deprecated", len(result.NewlyDeprecated),
		"reactivated", len(result.Reactivated),
		"removable", len(result.Removable))

	return result, nil
}
