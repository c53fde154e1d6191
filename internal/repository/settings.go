package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// SettingsRepository 运行时配置仓库（runtime_settings 键值表）
type SettingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSettingsRepository 创建运行时配置仓库
func NewSettingsRepository(db *sql.DB, logger *zap.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:     db,
		logger: logger,
	}
}

// GetAll 读取全部运行时配置
func (r *SettingsRepository) GetAll(ctx context.Context) (map[string]string, error) {
	query := `
		SELECT setting_key, setting_value
		FROM runtime_settings
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runtime settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan runtime setting: %w", err)
		}
		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runtime settings: %w", err)
	}

	return settings, nil
}

// Get 读取单个运行时配置，不存在时返回空串
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}

	query := `
		SELECT setting_value
		FROM runtime_settings
		WHERE setting_key = $1
	`

	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to query runtime setting: %w", err)
	}

	return value, nil
}
