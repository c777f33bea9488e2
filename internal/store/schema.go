package store

import (
	"context"
	"database/sql"
)

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

// Migrate brings the schema up to schemaVersion.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= schemaVersion {
		return tx.Commit()
	}

	// ---- Schema v1 ----

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS partners (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  partner_id TEXT NOT NULL,
  partner_name TEXT NOT NULL,
  v_land TEXT NOT NULL DEFAULT '',
  v_vatnr TEXT NOT NULL DEFAULT '',
  v_cname TEXT NOT NULL DEFAULT '',
  v_caddress TEXT NOT NULL DEFAULT '',
  v_status TEXT NOT NULL,
  v_errmsg TEXT NOT NULL DEFAULT '',
  v_reqdate TEXT NOT NULL DEFAULT '',
  cpudate TEXT NOT NULL,
  source_file TEXT NOT NULL DEFAULT '',
  line_nr INTEGER NOT NULL DEFAULT 0
);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS idx_partners_partner_id
ON partners(partner_id);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}
