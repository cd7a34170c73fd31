package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

const sqlSelectSetting = `SELECT value FROM setting WHERE id = ?`

// GetSetting returns a setting's raw string value, or ("", false, nil) if
// unset. The internal/settings package layers typed accessors and defaults
// on top of this raw key/value store.
func GetSetting(ctx context.Context, tx *sql.Tx, key string) (string, bool, error) {
	var value sql.NullString

	err := tx.QueryRowContext(ctx, sqlSelectSetting, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("catalog: get setting %s: %w", key, err)
	}

	return value.String, value.Valid, nil
}

const sqlUpsertSetting = `INSERT INTO setting (id, value) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET value = excluded.value`

// SetSetting writes (or overwrites) a setting's raw string value.
func SetSetting(ctx context.Context, tx *Tx, key, value string) error {
	if _, err := tx.ExecContext(ctx, sqlUpsertSetting, key, value); err != nil {
		return fmt.Errorf("catalog: set setting %s: %w", key, err)
	}

	return nil
}

const sqlDeleteSetting = `DELETE FROM setting WHERE id = ?`

// DeleteSetting removes a setting, reverting any accessor that reads it
// back to its compiled-in default.
func DeleteSetting(ctx context.Context, tx *Tx, key string) error {
	if _, err := tx.ExecContext(ctx, sqlDeleteSetting, key); err != nil {
		return fmt.Errorf("catalog: delete setting %s: %w", key, err)
	}

	return nil
}

const sqlSelectAllSettings = `SELECT id, value FROM setting ORDER BY id`

// ListSettings returns every persisted setting, for diagnostics and the
// settings-dump CLI subcommand.
func ListSettings(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, sqlSelectAllSettings)
	if err != nil {
		return nil, fmt.Errorf("catalog: list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)

	for rows.Next() {
		var key string

		var value sql.NullString

		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("catalog: scan setting: %w", err)
		}

		out[key] = value.String
	}

	return out, rows.Err()
}
