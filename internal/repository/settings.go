package repository

import (
	"context"
	"fmt"

	"github.com/sipadi/padi/internal/domain"
)

// GetSetting returns a runtime setting or ErrNotFound.
func (r *SQLRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	query := `SELECT setting_value FROM system_settings WHERE setting_key = ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), key).Scan(&value); err != nil {
		return "", notFound(err, "setting "+key)
	}
	return value, nil
}

// SetSetting creates or replaces a runtime setting.
func (r *SQLRepository) SetSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: setting key is required", ErrInvalidInput)
	}
	query := `
		INSERT INTO system_settings (setting_key, setting_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (setting_key) DO UPDATE SET
			setting_value = excluded.setting_value,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query), key, value, r.now())
	return err
}

// ListSettings returns all settings ordered by key.
func (r *SQLRepository) ListSettings(ctx context.Context) ([]*domain.Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT setting_key, setting_value, updated_at FROM system_settings ORDER BY setting_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []*domain.Setting
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, &s)
	}
	return settings, rows.Err()
}
