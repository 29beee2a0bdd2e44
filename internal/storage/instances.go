package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"templarr/internal/common"
	"templarr/internal/model"
)

// SaveInstance upserts an instance registration.
func (s *SQLiteStorage) SaveInstance(ctx context.Context, instance *model.Instance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if instance == nil {
		return fmt.Errorf("%w: instance", ErrNilParameter)
	}
	if err := instance.Validate(); err != nil {
		return fmt.Errorf("invalid instance: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, name, url, api_key, service_kind)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			api_key = excluded.api_key,
			service_kind = excluded.service_kind`,
		instance.ID, instance.Name, instance.URL, instance.APIKey, instance.ServiceKind); err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by id.
func (s *SQLiteStorage) GetInstance(ctx context.Context, id string) (*model.Instance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	instance := &model.Instance{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, url, api_key, service_kind, created_at
		FROM instances WHERE id = ?`, id).Scan(
		&instance.Name, &instance.URL, &instance.APIKey, &instance.ServiceKind, &instance.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("instance %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}
	return instance, nil
}

// ListInstances returns all registered instances.
func (s *SQLiteStorage) ListInstances(ctx context.Context) ([]model.Instance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, url, api_key, service_kind, created_at
		FROM instances ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanInstances(rows)
}

// DeleteInstance removes an instance and its links.
func (s *SQLiteStorage) DeleteInstance(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("instance %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// LinkInstance links an instance to a template for reconciliation. Linking an
// already-linked pair returns ErrDuplicateEntry.
func (s *SQLiteStorage) LinkInstance(ctx context.Context, instanceID, templateID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO instance_links (instance_id, template_id)
		VALUES (?, ?)`, instanceID, templateID); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("instance %s already linked to template %s: %w",
				instanceID, templateID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to link instance: %w", err)
	}
	return nil
}

// UnlinkInstance removes an instance-template link.
func (s *SQLiteStorage) UnlinkInstance(ctx context.Context, instanceID, templateID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM instance_links WHERE instance_id = ? AND template_id = ?`,
		instanceID, templateID); err != nil {
		return fmt.Errorf("failed to unlink instance: %w", err)
	}
	return nil
}

// LinkedInstances returns the instances linked to a template.
func (s *SQLiteStorage) LinkedInstances(ctx context.Context, templateID string) ([]model.Instance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.name, i.url, i.api_key, i.service_kind, i.created_at
		FROM instances i
		JOIN instance_links l ON l.instance_id = i.id
		WHERE l.template_id = ?
		ORDER BY i.id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanInstances(rows)
}

func scanInstances(rows *sql.Rows) ([]model.Instance, error) {
	var instances []model.Instance
	for rows.Next() {
		var instance model.Instance
		if err := rows.Scan(&instance.ID, &instance.Name, &instance.URL,
			&instance.APIKey, &instance.ServiceKind, &instance.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

// GetInstanceOverride returns the per-instance scoring profile override, or
// nil when the instance has none.
func (s *SQLiteStorage) GetInstanceOverride(ctx context.Context, instanceID, templateID string) (*model.InstanceOverride, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	override := &model.InstanceOverride{InstanceID: instanceID, TemplateID: templateID}
	var cutoff sql.NullString
	var minScore, cutoffScore sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT cutoff, min_score, cutoff_score, last_modified_at
		FROM instance_overrides
		WHERE instance_id = ? AND template_id = ?`, instanceID, templateID).Scan(
		&cutoff, &minScore, &cutoffScore, &override.LastModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instance override: %w", err)
	}

	if cutoff.Valid || minScore.Valid || cutoffScore.Valid {
		override.QualityOverride = &model.ScoringProfile{
			Cutoff:      cutoff.String,
			MinScore:    int(minScore.Int64),
			CutoffScore: int(cutoffScore.Int64),
		}
	}
	return override, nil
}

// SaveInstanceOverride upserts a per-instance scoring profile override.
func (s *SQLiteStorage) SaveInstanceOverride(ctx context.Context, override *model.InstanceOverride) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if override == nil {
		return fmt.Errorf("%w: override", ErrNilParameter)
	}

	var cutoff *string
	var minScore, cutoffScore *int
	if override.QualityOverride != nil {
		cutoff = &override.QualityOverride.Cutoff
		minScore = &override.QualityOverride.MinScore
		cutoffScore = &override.QualityOverride.CutoffScore
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO instance_overrides (instance_id, template_id, cutoff, min_score, cutoff_score, last_modified_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(instance_id, template_id) DO UPDATE SET
			cutoff = excluded.cutoff,
			min_score = excluded.min_score,
			cutoff_score = excluded.cutoff_score,
			last_modified_at = CURRENT_TIMESTAMP`,
		override.InstanceID, override.TemplateID, cutoff, minScore, cutoffScore); err != nil {
		return fmt.Errorf("failed to save instance override: %w", err)
	}
	return nil
}

// DeleteInstanceOverride removes a per-instance scoring profile override.
func (s *SQLiteStorage) DeleteInstanceOverride(ctx context.Context, instanceID, templateID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM instance_overrides WHERE instance_id = ? AND template_id = ?`,
		instanceID, templateID); err != nil {
		return fmt.Errorf("failed to delete instance override: %w", err)
	}
	return nil
}
