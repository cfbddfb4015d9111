package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the tables the analysis engine reads and writes.
// The requirements table is normally owned by the requirements CRUD service.
const Schema = `
CREATE TABLE IF NOT EXISTS requirements (
	id          UUID PRIMARY KEY,
	project_id  UUID NOT NULL,
	text        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS requirements_project_idx ON requirements (project_id);

CREATE TABLE IF NOT EXISTS comparison_results (
	id                  UUID PRIMARY KEY,
	project_id          UUID NOT NULL,
	requirement_id_1    UUID,
	requirement_id_2    UUID,
	requirement_text_1  TEXT NOT NULL,
	requirement_text_2  TEXT NOT NULL,
	index_1             INTEGER NOT NULL,
	index_2             INTEGER NOT NULL,
	similarity_score    DOUBLE PRECISION NOT NULL,
	contradiction_score DOUBLE PRECISION NOT NULL,
	is_contradiction    BOOLEAN NOT NULL,
	provider            TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS comparison_results_project_idx ON comparison_results (project_id);

CREATE TABLE IF NOT EXISTS analysis_tasks (
	id                    UUID PRIMARY KEY,
	project_id            UUID NOT NULL,
	status                TEXT NOT NULL,
	progress              INTEGER NOT NULL DEFAULT 0,
	total_comparisons     INTEGER NOT NULL DEFAULT 0,
	completed_comparisons INTEGER NOT NULL DEFAULT 0,
	current_requirement_1 TEXT NOT NULL DEFAULT '',
	current_requirement_2 TEXT NOT NULL DEFAULT '',
	error                 TEXT NOT NULL DEFAULT '',
	is_current            BOOLEAN NOT NULL DEFAULT FALSE,
	started_at            TIMESTAMPTZ,
	completed_at          TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS analysis_tasks_current_idx ON analysis_tasks (project_id) WHERE is_current;
`

// Migrate applies Schema
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
