package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"templarr/internal/model"
)

// Check is the scheduler entry point: it compares one template against every
// linked instance with bounded concurrency and reports per-instance results.
// Each instance check is independent; one failure never blocks the others.
//
// What happens on drift depends on the template's sync mode: auto applies
// when the operator has no outstanding customizations, notify and manual only
// report. Conflicted states are reported, never auto-applied.
func (e *ReconcileEngine) Check(ctx context.Context, templateID string) ([]model.CheckReport, error) {
	template, err := e.storage.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
	}
	instances, err := e.storage.LinkedInstances(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked instances: %w", err)
	}

	reports := make([]model.CheckReport, len(instances))
	sem := make(chan struct{}, e.config.CheckConcurrency)
	var wg sync.WaitGroup

	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			reports[i] = e.checkInstance(ctx, template, instances[i].ID)
		}(i)
	}
	wg.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].InstanceID < reports[j].InstanceID })
	return reports, nil
}

func (e *ReconcileEngine) checkInstance(ctx context.Context, template *model.Template, instanceID string) (report model.CheckReport) {
	report = model.CheckReport{InstanceID: instanceID}
	// A failed pair re-enters the update-available path on its next tick.
	e.advanceLifecycle(template.ID, instanceID, model.EventCheckScheduled)
	defer func() { report.State = e.Lifecycle(template.ID, instanceID) }()

	rec, err := e.prepare(ctx, instanceID, template.ID)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	plan, err := e.plan(ctx, rec)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}

	report.Conflicts = plan.Conflicts
	report.IsUpToDate = plan.InSync()
	if report.IsUpToDate {
		e.resetLifecycle(template.ID, instanceID)
		return report
	}

	e.advanceLifecycle(template.ID, instanceID, model.EventUpdateDetected)
	action := Decide(template.Sync.Mode, len(rec.customizations) > 0)
	if action != ActionApply || !plan.Conflicts.Empty() {
		slog.Info("Update available",
			"template", template.ID,
			"instance", instanceID,
			"mode", template.Sync.Mode,
			"changes", plan.Summary.TotalChanges)
		return report
	}

	result, err := e.Apply(ctx, instanceID, template.ID, plan, false)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	report.Applied = result.AnySucceeded()
	for _, failure := range result.Failed {
		report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %s", failure.Kind, failure.ExternalID, failure.Err))
	}
	report.IsUpToDate = result.Complete()
	return report
}
