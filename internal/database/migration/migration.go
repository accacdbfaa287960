package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type migrationStep struct {
	Name string
	SQL  string
}

// sentinelTable is created last among the tables; its presence means the schema is current.
const sentinelTable = "public.scan_logs"

var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id              UUID        PRIMARY KEY,
  title           TEXT        NOT NULL CHECK (char_length(title) BETWEEN 1 AND 100),
  description     TEXT        NOT NULL DEFAULT '' CHECK (char_length(description) <= 500),
  department      TEXT        NOT NULL CHECK (department <> ''),
  machine_id      TEXT        NOT NULL DEFAULT '',
  access_roles    TEXT[]      NOT NULL DEFAULT '{user}',
  current_version INTEGER     NOT NULL CHECK (current_version >= 1),
  created_by      TEXT        NOT NULL,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_documents_department",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_department ON documents (department);`,
	},
	{
		Name: "create_index_documents_updated_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents (updated_at);`,
	},
	{
		Name: "create_index_documents_created_by",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_by ON documents (created_by);`,
	},
	{
		Name: "create_table_document_versions",
		SQL: `CREATE TABLE IF NOT EXISTS document_versions (
  document_id       UUID        NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  version_number    INTEGER     NOT NULL CHECK (version_number >= 1),
  storage_key       TEXT        NOT NULL UNIQUE,
  url               TEXT        NOT NULL,
  original_filename TEXT        NOT NULL,
  content_type      TEXT        NOT NULL,
  size              BIGINT      NOT NULL CHECK (size >= 0),
  checksum          TEXT        NOT NULL,
  uploaded_by       TEXT        NOT NULL,
  uploaded_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  notes             TEXT        NOT NULL DEFAULT '',
  PRIMARY KEY (document_id, version_number)
);`,
	},
	{
		Name: "create_table_qr_bindings",
		SQL: `CREATE TABLE IF NOT EXISTS qr_bindings (
  qr_id          TEXT        PRIMARY KEY,
  document_id    UUID        NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  is_active      BOOLEAN     NOT NULL DEFAULT TRUE,
  scan_count     BIGINT      NOT NULL DEFAULT 0 CHECK (scan_count >= 0),
  last_scan_at   TIMESTAMPTZ,
  created_by     TEXT        NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  deactivated_at TIMESTAMPTZ
);`,
	},
	{
		Name: "create_index_qr_bindings_one_active_per_document",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS qr_bindings_one_active_per_document ON qr_bindings (document_id) WHERE is_active;`,
	},
	{
		Name: "create_table_scan_logs",
		SQL: `CREATE TABLE IF NOT EXISTS scan_logs (
  id              UUID        PRIMARY KEY,
  qr_id           TEXT        NOT NULL,
  document_id     UUID        NOT NULL,
  department      TEXT        NOT NULL DEFAULT '',
  scanner_user_id TEXT,
  scanned_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  ip_address      TEXT        NOT NULL DEFAULT '',
  user_agent      TEXT        NOT NULL DEFAULT '',
  success         BOOLEAN     NOT NULL,
  reason          TEXT        NOT NULL DEFAULT ''
);`,
	},
	{
		Name: "create_index_scan_logs_scanned_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_scan_logs_scanned_at ON scan_logs (scanned_at);`,
	},
	{
		Name: "create_index_scan_logs_document_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_scan_logs_document_id ON scan_logs (document_id);`,
	},
	{
		Name: "create_index_scan_logs_qr_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_scan_logs_qr_id ON scan_logs (qr_id, scanned_at);`,
	},
	{
		Name: "create_index_scan_logs_department",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_scan_logs_department ON scan_logs (department, scanned_at);`,
	},
}

// EnsureMigrated checks for the sentinel table and applies every step if it is missing.
func EnsureMigrated(ctx context.Context, db *sql.DB, log logrus.FieldLogger, dbHost string) error {
	start := time.Now()
	log = log.WithFields(logrus.Fields{"component": "database", "db_host": dbHost})

	log.WithFields(logrus.Fields{"event": "db_migration_check", "status": "starting"}).Info("checking schema")

	var exists bool
	query := fmt.Sprintf("SELECT to_regclass('%s') IS NOT NULL", sentinelTable)
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_failed",
			"status":      "error",
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Error("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_skip",
			"status":      "success",
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("schema already exists, skipping migration")
		return nil
	}

	log.WithFields(logrus.Fields{"event": "db_migration_start", "status": "in_progress"}).Info("applying schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.WithFields(logrus.Fields{
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			}).WithError(err).Error("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.WithFields(logrus.Fields{
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}).Debug("migration step applied")
	}

	log.WithFields(logrus.Fields{
		"event":       "db_migration_success",
		"status":      "success",
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("schema migrated")

	return nil
}
