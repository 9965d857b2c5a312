package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

// sentinelTable marks a migrated schema.
const sentinelTable = "public.lesson_attempts"

var steps = []migrationStep{
	{
		Name: "create_table_lesson_attempts",
		SQL: `CREATE TABLE IF NOT EXISTS lesson_attempts (
  id           UUID        PRIMARY KEY,
  user_id      TEXT        NOT NULL,
  assignment   TEXT        NOT NULL,
  solved       BOOLEAN     NOT NULL DEFAULT false,
  feedback_key TEXT        NOT NULL,
  delay_ms     BIGINT      NOT NULL DEFAULT 0 CHECK (delay_ms >= 0),
  archive_key  TEXT        NOT NULL DEFAULT '',
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_lesson_attempts_user_assignment",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_lesson_attempts_user_assignment ON lesson_attempts (user_id, assignment);`,
	},
	{
		Name: "create_index_lesson_attempts_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_lesson_attempts_created_at ON lesson_attempts (created_at);`,
	},
}

// EnsureMigrated checks if the attempts table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger, dbHost string) error {
	start := time.Now()
	log = log.With(zap.String("component", "database"), zap.String("db_host", dbHost))

	log.Info("db_migration_check", zap.String("status", "starting"))

	var exists bool
	err := db.QueryRowContext(ctx, "SELECT to_regclass($1) IS NOT NULL", sentinelTable).Scan(&exists)
	if err != nil {
		log.Error("db_migration_failed",
			zap.String("status", "error"),
			zap.Error(err),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			zap.String("status", "success"),
			zap.String("reason", "schema already exists"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", zap.String("status", "in_progress"))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("status", "error"),
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			zap.String("status", "success"),
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success",
		zap.String("status", "success"),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
