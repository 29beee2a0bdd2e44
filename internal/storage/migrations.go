package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS templates (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					service_kind TEXT NOT NULL,
					source_version TEXT NOT NULL DEFAULT '',
					cutoff TEXT NOT NULL DEFAULT '',
					min_score INTEGER NOT NULL DEFAULT 0,
					cutoff_score INTEGER NOT NULL DEFAULT 0,
					sync_mode TEXT NOT NULL DEFAULT 'manual',
					delete_removed INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS template_rules (
					template_id TEXT NOT NULL,
					external_id TEXT NOT NULL,
					name TEXT NOT NULL,
					score_override INTEGER,
					default_score INTEGER NOT NULL DEFAULT 0,
					condition_flags TEXT,
					origin TEXT NOT NULL DEFAULT 'template',
					required INTEGER NOT NULL DEFAULT 0,
					optional INTEGER NOT NULL DEFAULT 0,
					is_default INTEGER NOT NULL DEFAULT 0,
					added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					deprecated INTEGER NOT NULL DEFAULT 0,
					deprecated_at DATETIME,
					deprecated_reason TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (template_id, external_id),
					FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_template_rules_deprecated ON template_rules(template_id, deprecated)`,

				`CREATE TABLE IF NOT EXISTS template_groups (
					template_id TEXT NOT NULL,
					external_id TEXT NOT NULL,
					name TEXT NOT NULL,
					enabled INTEGER NOT NULL DEFAULT 1,
					members TEXT NOT NULL DEFAULT '[]',
					mutually_exclusive INTEGER NOT NULL DEFAULT 0,
					default_member_id TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (template_id, external_id),
					FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Instances, links, and customizations",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS instances (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					url TEXT NOT NULL,
					api_key TEXT NOT NULL,
					service_kind TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS instance_links (
					instance_id TEXT NOT NULL,
					template_id TEXT NOT NULL,
					PRIMARY KEY (instance_id, template_id),
					FOREIGN KEY (instance_id) REFERENCES instances(id) ON DELETE CASCADE,
					FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS customizations (
					template_id TEXT NOT NULL,
					instance_id TEXT NOT NULL DEFAULT '',
					external_id TEXT NOT NULL,
					excluded INTEGER,
					score_override INTEGER,
					PRIMARY KEY (template_id, instance_id, external_id),
					FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS instance_overrides (
					instance_id TEXT NOT NULL,
					template_id TEXT NOT NULL,
					cutoff TEXT,
					min_score INTEGER,
					cutoff_score INTEGER,
					last_modified_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (instance_id, template_id),
					FOREIGN KEY (instance_id) REFERENCES instances(id) ON DELETE CASCADE,
					FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Tracked applications",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS tracked_applications (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					instance_id TEXT NOT NULL,
					template_id TEXT NOT NULL,
					first_applied_at DATETIME NOT NULL,
					last_applied_at DATETIME NOT NULL,
					UNIQUE (instance_id, template_id)
				)`)
			return err
		},
	},
}

// Migrate runs all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current := 0
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
			migration.Version, migration.Description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("Applied migration", "version", migration.Version, "description", migration.Description)
	}

	return nil
}
