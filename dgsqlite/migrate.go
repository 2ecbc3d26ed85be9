package dgsqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaSteps[i] upgrades the schema from version i to i+1.
var schemaSteps = []func(context.Context, *sql.Tx) error{
	createBlocksAndCommits,
}

// migrate brings the schema up to len(schemaSteps) in a single transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	// The single row with id 0 holds the schema version.
	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_version(
  id INTEGER PRIMARY KEY CHECK (id = 0),
  version INTEGER NOT NULL
);
INSERT OR IGNORE INTO schema_version(id, version) VALUES (0, 0);`,
	); err != nil {
		return fmt.Errorf("prepare schema_version table: %w", err)
	}

	var have int
	if err := tx.QueryRowContext(
		ctx, `SELECT version FROM schema_version WHERE id = 0`,
	).Scan(&have); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if have > len(schemaSteps) {
		return fmt.Errorf(
			"database schema version %d is newer than supported version %d",
			have, len(schemaSteps),
		)
	}
	if have == len(schemaSteps) {
		return nil
	}

	for v := have; v < len(schemaSteps); v++ {
		if err := schemaSteps[v](ctx, tx); err != nil {
			return fmt.Errorf("schema step %d->%d: %w", v, v+1, err)
		}
	}

	if _, err := tx.ExecContext(
		ctx, `UPDATE schema_version SET version = ? WHERE id = 0`, len(schemaSteps),
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	// https://sqlite.org/pragma.html#pragma_optimize recommends this after schema changes.
	if _, err := tx.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return fmt.Errorf("optimize after migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func createBlocksAndCommits(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(
		ctx,
		// The primary key orders rows as BlockRef does,
		// because SQLite compares blobs bytewise.
		// data holds the snappy-compressed codec encoding.
		`
CREATE TABLE blocks(
  round INTEGER NOT NULL CHECK (round >= 0),
  author INTEGER NOT NULL CHECK (author BETWEEN 0 AND 65535),
  digest BLOB NOT NULL CHECK (length(digest) = 32),
  data BLOB NOT NULL,
  PRIMARY KEY (round, author, digest)
) WITHOUT ROWID;`+

			// idx is gap-free from 1.
			// leader_round and leader_author duplicate data for ad hoc queries.
			`
CREATE TABLE commits(
  idx INTEGER PRIMARY KEY NOT NULL CHECK (idx > 0),
  leader_round INTEGER NOT NULL,
  leader_author INTEGER NOT NULL,
  data BLOB NOT NULL
);`,
	)
	return err
}
