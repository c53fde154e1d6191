package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wardlink-alert/internal/models"

	"go.uber.org/zap"
)

// GuardianRepository 监护关系仓库（用于报警派发）
type GuardianRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGuardianRepository 创建监护关系仓库
func NewGuardianRepository(db *sql.DB, logger *zap.Logger) *GuardianRepository {
	return &GuardianRepository{
		db:     db,
		logger: logger,
	}
}

// FindActiveGuardians 查询某个被监护人的所有活跃监护人
// 顺序保持持久层稳定顺序（按监护关系创建时间），派发方不得重新排序
// 未知的 ward_id 返回空列表，不视为错误
func (r *GuardianRepository) FindActiveGuardians(ctx context.Context, wardID string) ([]models.GuardianInfo, error) {
	if wardID == "" {
		return nil, fmt.Errorf("ward_id is required")
	}

	query := `
		SELECT
			u.user_id,
			u.first_name,
			u.last_name,
			COALESCE(u.email, ''),
			COALESCE(u.phone_number, '')
		FROM guardian_relationships gr
		JOIN users u ON u.user_id = gr.guardian_id
		WHERE gr.ward_id = $1
		  AND gr.is_active = TRUE
		ORDER BY gr.created_at, gr.guardian_id
	`

	rows, err := r.db.QueryContext(ctx, query, wardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardians: %w", err)
	}
	defer rows.Close()

	var guardians []models.GuardianInfo
	for rows.Next() {
		var g models.GuardianInfo
		err := rows.Scan(
			&g.ID,
			&g.FirstName,
			&g.LastName,
			&g.Email,
			&g.PhoneNumber,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guardian: %w", err)
		}
		guardians = append(guardians, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guardians: %w", err)
	}

	return guardians, nil
}

// GetGuardianByID 根据监护人ID获取监护人信息
func (r *GuardianRepository) GetGuardianByID(ctx context.Context, guardianID string) (*models.GuardianInfo, error) {
	if guardianID == "" {
		return nil, fmt.Errorf("guardian_id is required")
	}

	query := `
		SELECT
			u.user_id,
			u.first_name,
			u.last_name,
			COALESCE(u.email, ''),
			COALESCE(u.phone_number, '')
		FROM users u
		WHERE u.user_id = $1
	`

	var g models.GuardianInfo
	err := r.db.QueryRowContext(ctx, query, guardianID).Scan(
		&g.ID,
		&g.FirstName,
		&g.LastName,
		&g.Email,
		&g.PhoneNumber,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("guardian not found: %s", guardianID)
		}
		return nil, fmt.Errorf("failed to query guardian: %w", err)
	}

	return &g, nil
}

// GetWardIdentity 获取被监护人身份信息（用于上下文补全）
func (r *GuardianRepository) GetWardIdentity(ctx context.Context, wardID string) (*models.WardInfo, error) {
	if wardID == "" {
		return nil, fmt.Errorf("ward_id is required")
	}

	query := `
		SELECT
			u.user_id,
			u.first_name,
			u.last_name
		FROM users u
		WHERE u.user_id = $1
	`

	var w models.WardInfo
	err := r.db.QueryRowContext(ctx, query, wardID).Scan(
		&w.ID,
		&w.FirstName,
		&w.LastName,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ward not found: %s", wardID)
		}
		return nil, fmt.Errorf("failed to query ward: %w", err)
	}

	return &w, nil
}
