package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wardlink-alert/internal/models"

	"go.uber.org/zap"
)

// IncidentRepository 安全事件仓库
type IncidentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIncidentRepository 创建安全事件仓库
func NewIncidentRepository(db *sql.DB, logger *zap.Logger) *IncidentRepository {
	return &IncidentRepository{
		db:     db,
		logger: logger,
	}
}

// IncidentFilters 安全事件过滤条件
type IncidentFilters struct {
	// 时间段过滤
	StartTime *time.Time // 开始时间（triggered_at >= StartTime）
	EndTime   *time.Time // 结束时间（triggered_at <= EndTime）

	// 被监护人过滤
	WardID *string

	// 类型和优先级过滤
	AlertType  *string
	Priority   *string
	Priorities []string // 优先级列表（IN 查询）

	// 状态过滤
	Status   *string
	Statuses []string // 状态列表（IN 查询）

	// 处理人过滤
	HandlerID *string
}

// ============================================
// 基础 CRUD 操作
// ============================================

// CreateIncident 创建安全事件
func (r *IncidentRepository) CreateIncident(ctx context.Context, incident *models.Incident) error {
	if incident == nil {
		return fmt.Errorf("incident is required")
	}
	if incident.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if incident.WardID == "" {
		return fmt.Errorf("ward_id is required")
	}

	query := `
		INSERT INTO incident_events (
			event_id,
			ward_id,
			alert_type,
			priority,
			status,
			triggered_at,
			handled_at,
			latitude,
			longitude,
			accuracy,
			description,
			handler,
			notes,
			pre_incident_data,
			notified_guardians,
			metadata,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		incident.EventID,
		incident.WardID,
		string(incident.AlertType),
		string(incident.Priority),
		incident.Status,
		incident.TriggeredAt,
		incident.HandledAt,
		incident.Latitude,
		incident.Longitude,
		incident.Accuracy,
		incident.Description,
		incident.Handler,
		incident.Notes,
		incident.PreIncidentData,
		incident.NotifiedGuardians,
		incident.Metadata,
		incident.CreatedAt,
		incident.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}

	return nil
}

// GetIncident 根据 event_id 获取单个安全事件
func (r *IncidentRepository) GetIncident(ctx context.Context, eventID string) (*models.Incident, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := `
		SELECT
			event_id,
			ward_id,
			alert_type,
			priority,
			status,
			triggered_at,
			handled_at,
			latitude,
			longitude,
			accuracy,
			description,
			handler,
			notes,
			pre_incident_data,
			notified_guardians,
			metadata,
			created_at,
			updated_at
		FROM incident_events
		WHERE event_id = $1
	`

	incident, err := r.scanIncident(r.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("incident not found: event_id=%s", eventID)
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}

	return incident, nil
}

// GetRecentIncident 查询最近的同类型事件（用于重复报警抑制）
// withinMinutes 内同一 ward 同一类型的最新事件，没有则返回 nil
func (r *IncidentRepository) GetRecentIncident(ctx context.Context, wardID string, alertType models.AlertType, withinMinutes int) (*models.Incident, error) {
	if wardID == "" {
		return nil, fmt.Errorf("ward_id is required")
	}
	if withinMinutes <= 0 {
		return nil, nil
	}

	query := `
		SELECT
			event_id,
			ward_id,
			alert_type,
			priority,
			status,
			triggered_at,
			handled_at,
			latitude,
			longitude,
			accuracy,
			description,
			handler,
			notes,
			pre_incident_data,
			notified_guardians,
			metadata,
			created_at,
			updated_at
		FROM incident_events
		WHERE ward_id = $1
		  AND alert_type = $2
		  AND triggered_at >= $3
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	cutoff := time.Now().Add(-time.Duration(withinMinutes) * time.Minute)
	incident, err := r.scanIncident(r.db.QueryRowContext(ctx, query, wardID, string(alertType), cutoff))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recent incident: %w", err)
	}

	return incident, nil
}

// UpdateNotifiedGuardians 记录已通知的监护人（派发完成后回填）
func (r *IncidentRepository) UpdateNotifiedGuardians(ctx context.Context, eventID string, results []models.DeliveryResult) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	notifiedJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery results: %w", err)
	}

	query := `
		UPDATE incident_events
		SET notified_guardians = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE event_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, string(notifiedJSON), eventID)
	if err != nil {
		return fmt.Errorf("failed to update notified guardians: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("incident not found: event_id=%s", eventID)
	}

	return nil
}

// AcknowledgeIncident 确认安全事件
func (r *IncidentRepository) AcknowledgeIncident(ctx context.Context, eventID, handlerID string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if handlerID == "" {
		return fmt.Errorf("handler_id is required")
	}

	query := `
		UPDATE incident_events
		SET status = $1,
		    handler = $2,
		    handled_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE event_id = $3
		  AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query,
		models.IncidentStatusAcknowledged, handlerID, eventID, models.IncidentStatusActive)
	if err != nil {
		return fmt.Errorf("failed to acknowledge incident: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("incident not found or not active: event_id=%s", eventID)
	}

	return nil
}

// ResolveIncident 解除安全事件
func (r *IncidentRepository) ResolveIncident(ctx context.Context, eventID, handlerID string, notes *string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if handlerID == "" {
		return fmt.Errorf("handler_id is required")
	}

	query := `
		UPDATE incident_events
		SET status = $1,
		    handler = $2,
		    notes = COALESCE($3, notes),
		    handled_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE event_id = $4
		  AND status IN ($5, $6)
	`

	result, err := r.db.ExecContext(ctx, query,
		models.IncidentStatusResolved, handlerID, notes, eventID,
		models.IncidentStatusActive, models.IncidentStatusAcknowledged)
	if err != nil {
		return fmt.Errorf("failed to resolve incident: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("incident not found or already resolved: event_id=%s", eventID)
	}

	return nil
}

// ============================================
// 查询操作
// ============================================

// buildWhereClause 构建 WHERE 子句（用于 ListIncidents / CountIncidents）
func (r *IncidentRepository) buildWhereClause(filters IncidentFilters, args *[]interface{}, argN *int) []string {
	where := []string{"1=1"}

	// 时间段过滤
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("triggered_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("triggered_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}

	// 被监护人过滤
	if filters.WardID != nil {
		where = append(where, fmt.Sprintf("ward_id = $%d", *argN))
		*args = append(*args, *filters.WardID)
		*argN++
	}

	// 类型和优先级过滤
	if filters.AlertType != nil {
		where = append(where, fmt.Sprintf("alert_type = $%d", *argN))
		*args = append(*args, *filters.AlertType)
		*argN++
	}
	if filters.Priority != nil {
		where = append(where, fmt.Sprintf("priority = $%d", *argN))
		*args = append(*args, *filters.Priority)
		*argN++
	}
	if len(filters.Priorities) > 0 {
		placeholders := make([]string, len(filters.Priorities))
		for i := range filters.Priorities {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Priorities[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ", ")))
	}

	// 状态过滤
	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", *argN))
		*args = append(*args, *filters.Status)
		*argN++
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i := range filters.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Statuses[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	// 处理人过滤
	if filters.HandlerID != nil {
		where = append(where, fmt.Sprintf("handler = $%d", *argN))
		*args = append(*args, *filters.HandlerID)
		*argN++
	}

	return where
}

// ListIncidents 列表查询（支持多条件过滤、分页）
// 返回 (事件列表, 总数, 错误)
func (r *IncidentRepository) ListIncidents(ctx context.Context, filters IncidentFilters, page, size int) ([]*models.Incident, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(filters, &args, &argN)
	whereClause := strings.Join(where, " AND ")

	// 先查总数
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM incident_events WHERE %s`, whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	// 再查当前页
	query := fmt.Sprintf(`
		SELECT
			event_id,
			ward_id,
			alert_type,
			priority,
			status,
			triggered_at,
			handled_at,
			latitude,
			longitude,
			accuracy,
			description,
			handler,
			notes,
			pre_incident_data,
			notified_guardians,
			metadata,
			created_at,
			updated_at
		FROM incident_events
		WHERE %s
		ORDER BY triggered_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argN, argN+1)

	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		incident, err := r.scanIncident(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate incidents: %w", err)
	}

	return incidents, total, nil
}

// CountIncidents 统计安全事件数量
func (r *IncidentRepository) CountIncidents(ctx context.Context, filters IncidentFilters) (int, error) {
	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(filters, &args, &argN)

	query := fmt.Sprintf(`SELECT COUNT(*) FROM incident_events WHERE %s`, strings.Join(where, " AND "))

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	return count, nil
}

// scanner 兼容 *sql.Row 和 *sql.Rows 的扫描接口
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanIncident 扫描单行事件记录，处理可空字段和 JSONB 默认值
func (r *IncidentRepository) scanIncident(row scanner) (*models.Incident, error) {
	var incident models.Incident
	var alertType, priority string
	var handledAt sql.NullTime
	var latitude, longitude, accuracy sql.NullFloat64
	var description, handler, notes sql.NullString
	var preIncidentData, notifiedGuardians, metadata []byte

	err := row.Scan(
		&incident.EventID,
		&incident.WardID,
		&alertType,
		&priority,
		&incident.Status,
		&incident.TriggeredAt,
		&handledAt,
		&latitude,
		&longitude,
		&accuracy,
		&description,
		&handler,
		&notes,
		&preIncidentData,
		&notifiedGuardians,
		&metadata,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	incident.AlertType = models.AlertType(alertType)
	incident.Priority = models.Priority(priority)

	// 处理可空字段
	if handledAt.Valid {
		incident.HandledAt = &handledAt.Time
	}
	if latitude.Valid {
		incident.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		incident.Longitude = &longitude.Float64
	}
	if accuracy.Valid {
		incident.Accuracy = &accuracy.Float64
	}
	if description.Valid {
		incident.Description = &description.String
	}
	if handler.Valid {
		incident.Handler = &handler.String
	}
	if notes.Valid {
		incident.Notes = &notes.String
	}

	// 处理 JSONB 字段默认值
	if len(preIncidentData) > 0 {
		incident.PreIncidentData = string(preIncidentData)
	} else {
		incident.PreIncidentData = "{}"
	}
	if len(notifiedGuardians) > 0 {
		incident.NotifiedGuardians = string(notifiedGuardians)
	} else {
		incident.NotifiedGuardians = "[]"
	}
	if len(metadata) > 0 {
		incident.Metadata = string(metadata)
	} else {
		incident.Metadata = "{}"
	}

	return &incident, nil
}
