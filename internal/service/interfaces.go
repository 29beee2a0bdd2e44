// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"templarr/internal/model"
)

// Storage defines the contract for our persistence layer. Templates,
// customizations, instances, and tracked applications are durable; diff plans
// are never persisted.
type Storage interface {
	// Template operations
	SaveTemplate(ctx context.Context, template *model.Template) error
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	ListTemplates(ctx context.Context) ([]model.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	UpdateRuleProvenance(ctx context.Context, templateID string, rule *model.ClassificationRule) error
	DeleteTemplateRule(ctx context.Context, templateID, externalID string) error

	// Customization operations, scoped per template with optional per-instance
	// refinement (instanceID == "" means template-level).
	GetCustomizations(ctx context.Context, templateID, instanceID string) (model.Customizations, error)
	SaveCustomizations(ctx context.Context, templateID, instanceID string, customizations model.Customizations) error

	// Instance operations
	SaveInstance(ctx context.Context, instance *model.Instance) error
	GetInstance(ctx context.Context, id string) (*model.Instance, error)
	ListInstances(ctx context.Context) ([]model.Instance, error)
	DeleteInstance(ctx context.Context, id string) error
	LinkInstance(ctx context.Context, instanceID, templateID string) error
	UnlinkInstance(ctx context.Context, instanceID, templateID string) error
	LinkedInstances(ctx context.Context, templateID string) ([]model.Instance, error)

	// Instance-level scoring profile overrides
	GetInstanceOverride(ctx context.Context, instanceID, templateID string) (*model.InstanceOverride, error)
	SaveInstanceOverride(ctx context.Context, override *model.InstanceOverride) error
	DeleteInstanceOverride(ctx context.Context, instanceID, templateID string) error

	// Tracked applications
	GetTrackedApplication(ctx context.Context, instanceID, templateID string) (*model.TrackedApplication, error)
	UpsertTrackedApplication(ctx context.Context, instanceID, templateID string, appliedAt time.Time) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// InstanceClient is the remote instance's rule and profile API, treated as a
// black-box create/update/delete surface keyed by the instance's own numeric
// ids.
type InstanceClient interface {
	FetchState(ctx context.Context) (*model.RemoteState, error)
	CreateRule(ctx context.Context, create model.RuleCreate) (int64, error)
	UpdateRule(ctx context.Context, update model.RuleUpdate) error
	DeleteRule(ctx context.Context, remoteID int64) error
	UpdateProfile(ctx context.Context, profile model.ScoringProfile, remoteID int64) error
}

// ClientFactory builds an API client for one instance.
type ClientFactory func(instance *model.Instance) InstanceClient

// RetryOptions configures retry behavior for remote operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
