package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"templarr/internal/model"
)

// GetTrackedApplication returns the tracking record for a (instance,
// template) pair, or nil when the template has never been applied there.
func (s *SQLiteStorage) GetTrackedApplication(ctx context.Context, instanceID, templateID string) (*model.TrackedApplication, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tracked := &model.TrackedApplication{InstanceID: instanceID, TemplateID: templateID}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_applied_at, last_applied_at
		FROM tracked_applications
		WHERE instance_id = ? AND template_id = ?`, instanceID, templateID).Scan(
		&tracked.ID, &tracked.FirstAppliedAt, &tracked.LastAppliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked application: %w", err)
	}
	return tracked, nil
}

// UpsertTrackedApplication records a successful apply. The record is created
// on first apply and updated in place on re-apply; first_applied_at is never
// rewritten.
func (s *SQLiteStorage) UpsertTrackedApplication(ctx context.Context, instanceID, templateID string, appliedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(instanceID, "instanceID"); err != nil {
		return err
	}
	if err := validateString(templateID, "templateID"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_applications (instance_id, template_id, first_applied_at, last_applied_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(instance_id, template_id) DO UPDATE SET
			last_applied_at = excluded.last_applied_at`,
		instanceID, templateID, appliedAt.UTC(), appliedAt.UTC()); err != nil {
		return fmt.Errorf("failed to record application: %w", err)
	}
	return nil
}
