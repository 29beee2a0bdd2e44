// Package apply executes approved diff plans against remote instances.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"templarr/internal/common"
	"templarr/internal/model"
	"templarr/internal/service"
)

// Config holds executor tuning knobs.
type Config struct {
	// OnProgress, when set, is called after every attempted item.
	OnProgress  func(kind model.ItemKind, externalID string)
	Retry       service.RetryOptions
	ItemTimeout time.Duration
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
		ItemTimeout: 30 * time.Second,
	}
}

// Executor applies diff plans item by item. Apply operations are serialized
// per instance; plan-only callers never touch these locks.
type Executor struct {
	storage service.Storage
	locks   map[string]*sync.Mutex
	now     func() time.Time
	config  Config
	mu      sync.Mutex
}

// NewExecutor creates an executor with default configuration.
func NewExecutor(storage service.Storage) *Executor {
	return NewExecutorWithConfig(storage, DefaultConfig())
}

// NewExecutorWithConfig creates an executor with custom configuration.
func NewExecutorWithConfig(storage service.Storage, config Config) *Executor {
	return &Executor{
		storage: storage,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
		config:  config,
	}
}

// Apply executes a plan against one instance. Items are attempted
// independently: one failure never aborts the batch, and the result itemizes
// every success and failure. Sequencing is creates, then updates, then
// deletes, then the profile, so a rename-via-recreate never transiently drops
// an active rule and the profile only ever references rules that exist.
//
// A plan carrying conflicts is rejected with a ConflictError before any
// remote mutation. Cancellation is honored between items, never mid-item.
func (e *Executor) Apply(ctx context.Context, client service.InstanceClient, plan *model.DiffPlan, profile model.ScoringProfile) (*model.ApplyResult, error) {
	if !plan.Conflicts.Empty() {
		return nil, &common.ConflictError{Conflicts: plan.Conflicts}
	}

	lock := e.instanceLock(plan.InstanceID)
	lock.Lock()
	defer lock.Unlock()

	slog.Info("Applying plan",
		"instance", plan.InstanceID,
		"template", plan.TemplateID,
		"creates", len(plan.Creates),
		"updates", len(plan.Updates),
		"deletes", len(plan.Deletes),
		"profile", plan.Profile.Action)

	result := &model.ApplyResult{}

	for _, create := range plan.Creates {
		if e.canceled(ctx, result) {
			break
		}
		err := e.attempt(ctx, func(ctx context.Context) error {
			_, err := client.CreateRule(ctx, create)
			if errors.Is(err, common.ErrRemoteAlreadyExists) {
				return nil // idempotent create
			}
			return err
		})
		e.record(result, model.ItemCreate, create.ExternalID, create.Name, err)
	}

	for _, update := range plan.Updates {
		if e.canceled(ctx, result) {
			break
		}
		err := e.attempt(ctx, func(ctx context.Context) error {
			return client.UpdateRule(ctx, update)
		})
		e.record(result, model.ItemUpdate, update.ExternalID, update.Name, err)
	}

	for _, del := range plan.Deletes {
		if e.canceled(ctx, result) {
			break
		}
		err := e.attempt(ctx, func(ctx context.Context) error {
			err := client.DeleteRule(ctx, del.RemoteID)
			if errors.Is(err, common.ErrRemoteNotFound) {
				return nil // idempotent delete
			}
			return err
		})
		e.record(result, model.ItemDelete, del.ExternalID, del.Name, err)
	}

	if plan.Profile.Action == model.ProfileUpdate && !e.canceled(ctx, result) {
		err := e.attempt(ctx, func(ctx context.Context) error {
			return client.UpdateProfile(ctx, profile, plan.Profile.RemoteID)
		})
		if err == nil {
			result.ProfileApplied = true
		} else {
			result.Failed = append(result.Failed, model.ItemFailure{
				Kind:      model.ItemProfile,
				Name:      "scoring profile",
				ErrorKind: errorKind(err),
				Err:       err.Error(),
			})
		}
	}

	if result.AnySucceeded() {
		if err := e.storage.UpsertTrackedApplication(ctx, plan.InstanceID, plan.TemplateID, e.now()); err != nil {
			return result, fmt.Errorf("failed to record application: %w", err)
		}
	}

	slog.Info("Apply finished",
		"instance", plan.InstanceID,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"profile_applied", result.ProfileApplied,
		"canceled", result.Canceled)

	return result, nil
}

// attempt runs one item with a per-item timeout and bounded retry for
// transient remote errors.
func (e *Executor) attempt(ctx context.Context, op func(context.Context) error) error {
	return common.WithRetry(ctx, func() error {
		itemCtx := ctx
		if e.config.ItemTimeout > 0 {
			var cancel context.CancelFunc
			itemCtx, cancel = context.WithTimeout(ctx, e.config.ItemTimeout)
			defer cancel()
		}
		return op(itemCtx)
	}, e.config.Retry)
}

func (e *Executor) record(result *model.ApplyResult, kind model.ItemKind, externalID, name string, err error) {
	if e.config.OnProgress != nil {
		e.config.OnProgress(kind, externalID)
	}
	if err == nil {
		result.Succeeded = append(result.Succeeded, model.ItemOutcome{
			Kind:       kind,
			ExternalID: externalID,
			Name:       name,
		})
		return
	}
	slog.Warn("Plan item failed", "kind", kind, "rule", externalID, "error", err)
	result.Failed = append(result.Failed, model.ItemFailure{
		Kind:       kind,
		ExternalID: externalID,
		Name:       name,
		ErrorKind:  errorKind(err),
		Err:        err.Error(),
	})
}

func (e *Executor) canceled(ctx context.Context, result *model.ApplyResult) bool {
	if ctx.Err() != nil {
		result.Canceled = true
		return true
	}
	return false
}

func (e *Executor) instanceLock(instanceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[instanceID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[instanceID] = lock
	}
	return lock
}

func errorKind(err error) string {
	var remoteErr *common.RemoteError
	switch {
	case errors.As(err, &remoteErr) && remoteErr.Transient,
		errors.Is(err, common.ErrMaxRetries):
		return "remote_transient"
	case errors.As(err, &remoteErr):
		return "remote"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "remote"
	}
}
