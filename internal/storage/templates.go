package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"templarr/internal/common"
	"templarr/internal/model"
)

// SaveTemplate upserts a template along with all of its rules and groups in
// one transaction. Rules and groups are replaced wholesale; the template is
// the unit of persistence.
func (s *SQLiteStorage) SaveTemplate(ctx context.Context, template *model.Template) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if template == nil {
		return fmt.Errorf("%w: template", ErrNilParameter)
	}
	if err := template.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO templates (id, name, service_kind, source_version, cutoff, min_score, cutoff_score, sync_mode, delete_removed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			service_kind = excluded.service_kind,
			source_version = excluded.source_version,
			cutoff = excluded.cutoff,
			min_score = excluded.min_score,
			cutoff_score = excluded.cutoff_score,
			sync_mode = excluded.sync_mode,
			delete_removed = excluded.delete_removed,
			updated_at = CURRENT_TIMESTAMP`,
		template.ID, template.Name, template.ServiceKind, template.SourceVersion,
		template.Profile.Cutoff, template.Profile.MinScore, template.Profile.CutoffScore,
		string(template.Sync.Mode), template.Sync.DeleteRemovedOnSync); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM template_rules WHERE template_id = ?`, template.ID); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM template_groups WHERE template_id = ?`, template.ID); err != nil {
		return fmt.Errorf("failed to clear groups: %w", err)
	}

	for i := range template.Items {
		if err := insertRule(ctx, tx, template.ID, &template.Items[i]); err != nil {
			return err
		}
	}

	for i := range template.Groups {
		group := &template.Groups[i]
		members, err := json.Marshal(group.Members)
		if err != nil {
			return fmt.Errorf("failed to marshal group members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO template_groups (template_id, external_id, name, enabled, members, mutually_exclusive, default_member_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			template.ID, group.ExternalID, group.Name, group.Enabled,
			string(members), group.MutuallyExclusive, group.DefaultMemberID); err != nil {
			return fmt.Errorf("failed to save group %s: %w", group.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template: %w", err)
	}

	slog.Debug("saved template", "id", template.ID, "rules", len(template.Items), "groups", len(template.Groups))
	return nil
}

func insertRule(ctx context.Context, tx *sql.Tx, templateID string, rule *model.ClassificationRule) error {
	flags, err := marshalFlags(rule.ConditionFlags)
	if err != nil {
		return fmt.Errorf("failed to marshal condition flags for %s: %w", rule.ExternalID, err)
	}
	addedAt := rule.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO template_rules (
			template_id, external_id, name, score_override, default_score, condition_flags,
			origin, required, optional, is_default, added_at, deprecated, deprecated_at, deprecated_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		templateID, rule.ExternalID, rule.Name, rule.ScoreOverride, rule.DefaultScore, flags,
		string(rule.Origin), rule.Required, rule.Optional, rule.Default,
		addedAt, rule.Deprecated, rule.DeprecatedAt, rule.DeprecatedReason); err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ExternalID, err)
	}
	return nil
}

// GetTemplate retrieves a template with all of its rules and groups.
func (s *SQLiteStorage) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	template := &model.Template{ID: id}
	var syncMode string
	err := s.db.QueryRowContext(ctx, `
		SELECT name, service_kind, source_version, cutoff, min_score, cutoff_score,
			sync_mode, delete_removed, created_at, updated_at
		FROM templates WHERE id = ?`, id).Scan(
		&template.Name, &template.ServiceKind, &template.SourceVersion,
		&template.Profile.Cutoff, &template.Profile.MinScore, &template.Profile.CutoffScore,
		&syncMode, &template.Sync.DeleteRemovedOnSync, &template.CreatedAt, &template.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	template.Sync.Mode = model.SyncMode(syncMode)

	if template.Items, err = s.loadRules(ctx, id); err != nil {
		return nil, err
	}
	if template.Groups, err = s.loadGroups(ctx, id); err != nil {
		return nil, err
	}
	return template, nil
}

func (s *SQLiteStorage) loadRules(ctx context.Context, templateID string) ([]model.ClassificationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, name, score_override, default_score, condition_flags,
			origin, required, optional, is_default, added_at, deprecated, deprecated_at, deprecated_reason
		FROM template_rules WHERE template_id = ? ORDER BY external_id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.ClassificationRule
	for rows.Next() {
		var rule model.ClassificationRule
		var origin string
		var flags sql.NullString
		if err := rows.Scan(&rule.ExternalID, &rule.Name, &rule.ScoreOverride, &rule.DefaultScore, &flags,
			&origin, &rule.Required, &rule.Optional, &rule.Default,
			&rule.AddedAt, &rule.Deprecated, &rule.DeprecatedAt, &rule.DeprecatedReason); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule.Origin = model.Origin(origin)
		if rule.ConditionFlags, err = unmarshalFlags(flags); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ExternalID, err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (s *SQLiteStorage) loadGroups(ctx context.Context, templateID string) ([]model.RuleGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, name, enabled, members, mutually_exclusive, default_member_id
		FROM template_groups WHERE template_id = ? ORDER BY external_id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []model.RuleGroup
	for rows.Next() {
		var group model.RuleGroup
		var members string
		if err := rows.Scan(&group.ExternalID, &group.Name, &group.Enabled,
			&members, &group.MutuallyExclusive, &group.DefaultMemberID); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &group.Members); err != nil {
			return nil, fmt.Errorf("group %s: failed to unmarshal members: %w", group.ExternalID, err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// ListTemplates returns all templates without their rules or groups.
func (s *SQLiteStorage) ListTemplates(ctx context.Context) ([]model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, service_kind, source_version, sync_mode, delete_removed, created_at, updated_at
		FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []model.Template
	for rows.Next() {
		var template model.Template
		var syncMode string
		if err := rows.Scan(&template.ID, &template.Name, &template.ServiceKind, &template.SourceVersion,
			&syncMode, &template.Sync.DeleteRemovedOnSync, &template.CreatedAt, &template.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		template.Sync.Mode = model.SyncMode(syncMode)
		templates = append(templates, template)
	}
	return templates, rows.Err()
}

// DeleteTemplate removes a template and everything hanging off it.
func (s *SQLiteStorage) DeleteTemplate(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("template %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// UpdateRuleProvenance persists one rule's provenance fields without touching
// the rest of the template.
func (s *SQLiteStorage) UpdateRuleProvenance(ctx context.Context, templateID string, rule *model.ClassificationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE template_rules
		SET origin = ?, deprecated = ?, deprecated_at = ?, deprecated_reason = ?
		WHERE template_id = ? AND external_id = ?`,
		string(rule.Origin), rule.Deprecated, rule.DeprecatedAt, rule.DeprecatedReason,
		templateID, rule.ExternalID)
	if err != nil {
		return fmt.Errorf("failed to update provenance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s in template %s: %w", rule.ExternalID, templateID, common.ErrNotFound)
	}
	return nil
}

// DeleteTemplateRule removes one rule from a template.
func (s *SQLiteStorage) DeleteTemplateRule(ctx context.Context, templateID, externalID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM template_rules WHERE template_id = ? AND external_id = ?`,
		templateID, externalID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s in template %s: %w", externalID, templateID, common.ErrNotFound)
	}
	slog.Debug("deleted template rule", "template", templateID, "rule", externalID)
	return nil
}

func marshalFlags(flags map[string]bool) (sql.NullString, error) {
	if flags == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalFlags(raw sql.NullString) (map[string]bool, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var flags map[string]bool
	if err := json.Unmarshal([]byte(raw.String), &flags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal condition flags: %w", err)
	}
	return flags, nil
}
