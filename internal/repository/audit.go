package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AuditRepository 投递审计仓库（每次投递尝试一条记录，供运维工具消费）
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository 创建投递审计仓库
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// DeliveryAttempt 投递审计记录
type DeliveryAttempt struct {
	AttemptID         string    `json:"attempt_id" db:"attempt_id"`
	IncidentID        *string   `json:"incident_id,omitempty" db:"incident_id"`
	GuardianID        string    `json:"guardian_id" db:"guardian_id"`
	WardID            string    `json:"ward_id" db:"ward_id"`
	AlertType         string    `json:"alert_type" db:"alert_type"`
	Channel           string    `json:"channel" db:"channel"`
	Success           bool      `json:"success" db:"success"`
	Error             *string   `json:"error,omitempty" db:"error"`
	ProviderMessageID *string   `json:"provider_message_id,omitempty" db:"provider_message_id"`
	AttemptedAt       time.Time `json:"attempted_at" db:"attempted_at"`
}

// RecordDelivery 记录一次投递尝试的结果
func (r *AuditRepository) RecordDelivery(ctx context.Context, attempt *DeliveryAttempt) error {
	if attempt == nil {
		return fmt.Errorf("attempt is required")
	}
	if attempt.AttemptID == "" {
		return fmt.Errorf("attempt_id is required")
	}
	if attempt.GuardianID == "" {
		return fmt.Errorf("guardian_id is required")
	}

	query := `
		INSERT INTO delivery_audit (
			attempt_id,
			incident_id,
			guardian_id,
			ward_id,
			alert_type,
			channel,
			success,
			error,
			provider_message_id,
			attempted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		attempt.AttemptID,
		attempt.IncidentID,
		attempt.GuardianID,
		attempt.WardID,
		attempt.AlertType,
		attempt.Channel,
		attempt.Success,
		attempt.Error,
		attempt.ProviderMessageID,
		attempt.AttemptedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}

	return nil
}

// ListDeliveries 查询某个事件的全部投递记录（按时间升序）
func (r *AuditRepository) ListDeliveries(ctx context.Context, incidentID string) ([]DeliveryAttempt, error) {
	if incidentID == "" {
		return nil, fmt.Errorf("incident_id is required")
	}

	query := `
		SELECT
			attempt_id,
			incident_id,
			guardian_id,
			ward_id,
			alert_type,
			channel,
			success,
			error,
			provider_message_id,
			attempted_at
		FROM delivery_audit
		WHERE incident_id = $1
		ORDER BY attempted_at
	`

	rows, err := r.db.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []DeliveryAttempt
	for rows.Next() {
		var a DeliveryAttempt
		var incID, errStr, providerID sql.NullString

		err := rows.Scan(
			&a.AttemptID,
			&incID,
			&a.GuardianID,
			&a.WardID,
			&a.AlertType,
			&a.Channel,
			&a.Success,
			&errStr,
			&providerID,
			&a.AttemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}

		if incID.Valid {
			a.IncidentID = &incID.String
		}
		if errStr.Valid {
			a.Error = &errStr.String
		}
		if providerID.Valid {
			a.ProviderMessageID = &providerID.String
		}

		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery attempts: %w", err)
	}

	return attempts, nil
}
