package cli

import (
	"fmt"
	"strings"

	"templarr/internal/model"
)

// RenderPlan formats a diff plan for terminal preview.
func RenderPlan(plan *model.DiffPlan) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(fmt.Sprintf("Plan for %s (template %s)", plan.InstanceID, plan.TemplateID)))
	b.WriteString("\n")

	if plan.InSync() {
		b.WriteString(SuccessStyle.Render("✓ Already in sync — nothing to do"))
		b.WriteString("\n")
	}

	for _, create := range plan.Creates {
		b.WriteString(createStyle.Render(fmt.Sprintf("  + create %s (score %d)", create.Name, create.Score)))
		b.WriteString("\n")
	}
	for _, update := range plan.Updates {
		line := fmt.Sprintf("  ~ update %s", update.Name)
		if update.ScoreChanged {
			line += fmt.Sprintf(" (score %d → %d)", update.OldScore, update.NewScore)
		}
		if update.ConditionsChanged {
			line += " (conditions)"
		}
		b.WriteString(updateStyle.Render(line))
		b.WriteString("\n")
	}
	for _, del := range plan.Deletes {
		b.WriteString(deleteStyle.Render(fmt.Sprintf("  - delete %s", del.Name)))
		b.WriteString("\n")
	}
	if plan.Profile.Action == model.ProfileUpdate {
		b.WriteString(updateStyle.Render("  ~ update scoring profile"))
		b.WriteString("\n")
		for _, change := range plan.Profile.Changes {
			b.WriteString(SubtleStyle.Render(fmt.Sprintf("      %s: %s → %s", change.Field, change.Old, change.New)))
			b.WriteString("\n")
		}
	}

	for _, conflict := range plan.Conflicts {
		b.WriteString(ErrorStyle.Render("  ! conflict: " + conflict.String()))
		b.WriteString("\n")
	}
	for _, warning := range plan.Warnings {
		b.WriteString(WarningStyle.Render("  ! " + warning))
		b.WriteString("\n")
	}

	if !plan.InSync() {
		b.WriteString(SubtleStyle.Render(fmt.Sprintf(
			"\n%d changes: %d create, %d update, %d delete, %d score changes",
			plan.Summary.TotalChanges, plan.Summary.Created, plan.Summary.Updated,
			plan.Summary.Deleted, plan.Summary.ScoreChanges)))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderApplyResult formats an apply result item by item.
func RenderApplyResult(result *model.ApplyResult) string {
	var b strings.Builder

	for _, outcome := range result.Succeeded {
		b.WriteString(SuccessStyle.Render(fmt.Sprintf("  ✓ %s %s", outcome.Kind, outcome.Name)))
		b.WriteString("\n")
	}
	if result.ProfileApplied {
		b.WriteString(SuccessStyle.Render("  ✓ profile updated"))
		b.WriteString("\n")
	}
	for _, failure := range result.Failed {
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("  ✗ %s %s: %s", failure.Kind, failure.Name, failure.Err)))
		b.WriteString("\n")
	}
	if result.Canceled {
		b.WriteString(WarningStyle.Render("  interrupted; remaining items were not attempted"))
		b.WriteString("\n")
	}

	switch {
	case result.Complete() && !result.AnySucceeded():
		b.WriteString(SubtleStyle.Render("nothing to apply"))
		b.WriteString("\n")
	case result.Complete():
		b.WriteString(SuccessStyle.Render(fmt.Sprintf("applied %d items", len(result.Succeeded))))
		b.WriteString("\n")
	default:
		b.WriteString(WarningStyle.Render(fmt.Sprintf(
			"partial: %d applied, %d failed", len(result.Succeeded), len(result.Failed))))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderCheckReports formats the per-instance results of a scheduled check.
func RenderCheckReports(reports []model.CheckReport) string {
	var b strings.Builder
	for _, report := range reports {
		switch {
		case len(report.Errors) > 0:
			b.WriteString(ErrorStyle.Render(fmt.Sprintf("  %s: %s", report.InstanceID, strings.Join(report.Errors, "; "))))
		case report.Applied:
			b.WriteString(SuccessStyle.Render(fmt.Sprintf("  %s: applied", report.InstanceID)))
		case report.IsUpToDate:
			b.WriteString(SuccessStyle.Render(fmt.Sprintf("  %s: up to date", report.InstanceID)))
		default:
			b.WriteString(WarningStyle.Render(fmt.Sprintf("  %s: update available", report.InstanceID)))
		}
		if !report.Conflicts.Empty() {
			b.WriteString(ErrorStyle.Render(fmt.Sprintf(" (conflicts in %s)", strings.Join(report.Conflicts.GroupIDs(), ", "))))
		}
		if report.State != "" && report.State != model.StateInSync {
			b.WriteString(SubtleStyle.Render(fmt.Sprintf(" [%s]", report.State)))
		}
		b.WriteString("\n")
	}
	return b.String()
}
