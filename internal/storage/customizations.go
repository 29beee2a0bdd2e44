package storage

import (
	"context"
	"fmt"

	"templarr/internal/model"
)

// GetCustomizations loads the customization mapping for a template. An empty
// instanceID loads the template-level scope; a non-empty one loads only the
// per-instance refinements.
func (s *SQLiteStorage) GetCustomizations(ctx context.Context, templateID, instanceID string) (model.Customizations, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(templateID, "templateID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, excluded, score_override
		FROM customizations
		WHERE template_id = ? AND instance_id = ?`, templateID, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customizations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	customizations := make(model.Customizations)
	for rows.Next() {
		var externalID string
		var cust model.Customization
		if err := rows.Scan(&externalID, &cust.Excluded, &cust.ScoreOverride); err != nil {
			return nil, fmt.Errorf("failed to scan customization: %w", err)
		}
		customizations[externalID] = cust
	}
	return customizations, rows.Err()
}

// SaveCustomizations replaces the customization mapping for one scope in a
// single transaction. Saving an empty mapping clears the scope.
func (s *SQLiteStorage) SaveCustomizations(ctx context.Context, templateID, instanceID string, customizations model.Customizations) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(templateID, "templateID"); err != nil {
		return err
	}
	if err := customizations.Validate(); err != nil {
		return fmt.Errorf("invalid customizations: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM customizations WHERE template_id = ? AND instance_id = ?`,
		templateID, instanceID); err != nil {
		return fmt.Errorf("failed to clear customizations: %w", err)
	}

	for externalID, cust := range customizations {
		if cust.IsZero() {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customizations (template_id, instance_id, external_id, excluded, score_override)
			VALUES (?, ?, ?, ?, ?)`,
			templateID, instanceID, externalID, cust.Excluded, cust.ScoreOverride); err != nil {
			return fmt.Errorf("failed to save customization for %s: %w", externalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit customizations: %w", err)
	}
	return nil
}
