// Package engine orchestrates template reconciliation: preview, apply, and
// scheduled checks across linked instances.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"templarr/internal/apply"
	"templarr/internal/common"
	"templarr/internal/diff"
	"templarr/internal/model"
	"templarr/internal/resolve"
	"templarr/internal/service"
)

// Config holds configuration options for the reconcile engine.
type Config struct {
	// CheckConcurrency bounds the fan-out of scheduled checks across a
	// template's linked instances.
	CheckConcurrency int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{CheckConcurrency: 4}
}

// ReconcileEngine wires the resolver, planner, and executor around the
// storage and remote-client collaborators. It tracks the sync lifecycle of
// every (template, instance) pair it touches; see Lifecycle.
type ReconcileEngine struct {
	storage  service.Storage
	clients  service.ClientFactory
	executor *apply.Executor
	now      func() time.Time
	mu       sync.Mutex
	states   map[string]model.SyncState
	config   Config
}

// New creates a reconcile engine with the default configuration.
func New(storage service.Storage, clients service.ClientFactory, executor *apply.Executor) *ReconcileEngine {
	return NewWithConfig(storage, clients, executor, DefaultConfig())
}

// NewWithConfig creates a reconcile engine with custom configuration.
func NewWithConfig(storage service.Storage, clients service.ClientFactory, executor *apply.Executor, config Config) *ReconcileEngine {
	if config.CheckConcurrency <= 0 {
		config.CheckConcurrency = 1
	}
	return &ReconcileEngine{
		storage:  storage,
		clients:  clients,
		executor: executor,
		now:      time.Now,
		states:   make(map[string]model.SyncState),
		config:   config,
	}
}

// reconciliation is one fully-resolved (template, instance) pairing, ready to
// plan or apply.
type reconciliation struct {
	template       *model.Template
	instance       *model.Instance
	customizations model.Customizations
	effective      *model.EffectiveState
	conflicts      model.ConflictSet
	warnings       []string
	profile        model.ScoringProfile
	client         service.InstanceClient
}

// Preview computes the diff plan for one instance without taking the apply
// lock or mutating anything. Conflicts and warnings are annotated on the
// plan; they never block preview.
func (e *ReconcileEngine) Preview(ctx context.Context, instanceID, templateID string) (*model.DiffPlan, error) {
	rec, err := e.prepare(ctx, instanceID, templateID)
	if err != nil {
		return nil, err
	}
	return e.plan(ctx, rec)
}

// Apply executes an approved plan. The plan's basis must still match the
// template's current source version; otherwise a StalePlanError is returned
// and the caller must re-preview. The approved plan is never replayed
// blindly: the residual diff is re-derived against fresh remote state first,
// so re-applying an already-applied plan is a no-op.
//
// force supplies the explicit override resolution for outstanding
// mutually-exclusive conflicts; without it, conflicts fail fast before any
// remote mutation.
func (e *ReconcileEngine) Apply(ctx context.Context, instanceID, templateID string, approved *model.DiffPlan, force bool) (*model.ApplyResult, error) {
	rec, err := e.prepare(ctx, instanceID, templateID)
	if err != nil {
		return nil, err
	}

	if approved != nil && approved.BasisVersion != rec.template.SourceVersion {
		return nil, &common.StalePlanError{
			PlanVersion:    approved.BasisVersion,
			CurrentVersion: rec.template.SourceVersion,
		}
	}

	residual, err := e.plan(ctx, rec)
	if err != nil {
		return nil, err
	}

	if !residual.Conflicts.Empty() {
		if !force {
			return nil, &common.ConflictError{Conflicts: residual.Conflicts}
		}
		slog.Warn("Applying despite conflicts",
			"instance", instanceID,
			"groups", residual.Conflicts.GroupIDs())
		residual.Conflicts = nil
	}

	if residual.InSync() {
		slog.Info("Already in sync", "instance", instanceID, "template", templateID)
		e.resetLifecycle(templateID, instanceID)
		return &model.ApplyResult{}, nil
	}

	// A manual apply on a failed pair counts as a re-attempt tick.
	e.advanceLifecycle(templateID, instanceID, model.EventCheckScheduled)
	e.advanceLifecycle(templateID, instanceID, model.EventUpdateDetected)
	e.advanceLifecycle(templateID, instanceID, model.EventSyncStarted)

	result, err := e.executor.Apply(ctx, rec.client, residual, rec.profile)
	if err != nil || result == nil || !result.Complete() {
		e.advanceLifecycle(templateID, instanceID, model.EventSyncFailed)
	} else {
		e.advanceLifecycle(templateID, instanceID, model.EventSyncSucceeded)
	}
	if err != nil {
		return result, err
	}

	if err := e.pruneDeprecated(ctx, rec.template, result); err != nil {
		return result, err
	}

	return result, nil
}

// prepare loads everything a reconciliation needs and resolves the effective
// state. Pure failures here are loading errors; resolution itself never fails.
func (e *ReconcileEngine) prepare(ctx context.Context, instanceID, templateID string) (*reconciliation, error) {
	template, err := e.storage.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
	}
	instance, err := e.storage.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance %s: %w", instanceID, err)
	}

	customizations, err := e.loadCustomizations(ctx, templateID, instanceID)
	if err != nil {
		return nil, err
	}
	if err := customizations.Validate(); err != nil {
		return nil, common.NewValidationError("customizations", "%v", err)
	}

	effective, unresolved := resolve.Resolve(template, customizations)
	conflicts := resolve.Validate(effective, template.Groups)

	var warnings []string
	for _, warn := range unresolved {
		warnings = append(warnings, warn.Error())
	}

	profile := effective.Profile
	override, err := e.storage.GetInstanceOverride(ctx, instanceID, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance override: %w", err)
	}
	if override != nil && override.QualityOverride != nil {
		profile = *override.QualityOverride
	}

	return &reconciliation{
		template:       template,
		instance:       instance,
		customizations: customizations,
		effective:      effective,
		conflicts:      conflicts,
		warnings:       warnings,
		profile:        profile,
		client:         e.clients(instance),
	}, nil
}

// plan fetches fresh remote state and derives the diff plan.
func (e *ReconcileEngine) plan(ctx context.Context, rec *reconciliation) (*model.DiffPlan, error) {
	remote, err := rec.client.FetchState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote state for %s: %w", rec.instance.ID, err)
	}

	profileOverride := rec.profile
	plan := diff.Plan(rec.effective, remote, diff.Options{
		DeleteRemovedOnSync: rec.template.Sync.DeleteRemovedOnSync,
		ProfileOverride:     &profileOverride,
	})
	plan.InstanceID = rec.instance.ID
	plan.TemplateID = rec.template.ID
	plan.Conflicts = rec.conflicts
	plan.Warnings = rec.warnings
	return plan, nil
}

// loadCustomizations merges template-level customizations with the
// instance-level refinements; instance-level entries win per rule.
func (e *ReconcileEngine) loadCustomizations(ctx context.Context, templateID, instanceID string) (model.Customizations, error) {
	base, err := e.storage.GetCustomizations(ctx, templateID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load customizations: %w", err)
	}
	scoped, err := e.storage.GetCustomizations(ctx, templateID, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance customizations: %w", err)
	}

	merged := make(model.Customizations, len(base)+len(scoped))
	for id, cust := range base {
		merged[id] = cust
	}
	for id, cust := range scoped {
		merged[id] = cust
	}
	return merged, nil
}

// pruneDeprecated removes deprecated template-origin rules from the template
// store once their remote deletion succeeded. User-added rules never reach
// the delete diff, so they can never be pruned here.
func (e *ReconcileEngine) pruneDeprecated(ctx context.Context, template *model.Template, result *model.ApplyResult) error {
	if !template.Sync.DeleteRemovedOnSync {
		return nil
	}
	for _, outcome := range result.Succeeded {
		if outcome.Kind != model.ItemDelete {
			continue
		}
		rule := template.Rule(outcome.ExternalID)
		if rule == nil || !rule.Deprecated || rule.Origin != model.OriginTemplate {
			continue
		}
		if err := e.storage.DeleteTemplateRule(ctx, template.ID, rule.ExternalID); err != nil {
			return fmt.Errorf("failed to prune deprecated rule %s: %w", rule.ExternalID, err)
		}
		slog.Info("Pruned deprecated rule", "template", template.ID, "rule", rule.ExternalID)
	}
	return nil
}
