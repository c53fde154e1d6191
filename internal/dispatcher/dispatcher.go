package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wardlink-alert/internal/channel"
	"wardlink-alert/internal/models"
	"wardlink-alert/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GuardianDirectory 监护人数据源
type GuardianDirectory interface {
	FindActiveGuardians(ctx context.Context, wardID string) ([]models.GuardianInfo, error)
	GetGuardianByID(ctx context.Context, guardianID string) (*models.GuardianInfo, error)
	GetWardIdentity(ctx context.Context, wardID string) (*models.WardInfo, error)
}

// AuditRecorder 投递审计记录器
type AuditRecorder interface {
	RecordDelivery(ctx context.Context, attempt *repository.DeliveryAttempt) error
}

// IncidentUpdater 事件回填接口（派发完成后记录已通知的监护人）
type IncidentUpdater interface {
	UpdateNotifiedGuardians(ctx context.Context, eventID string, results []models.DeliveryResult) error
}

// Dispatcher 报警派发器
// 编排：解析监护人 → 逐个构建上下文 → 按回退顺序尝试渠道 → 收集每人结果 → 汇总
// 公开方法吸收一切失败：永远返回结果对象，绝不向上抛出
type Dispatcher struct {
	guardians GuardianDirectory
	builder   *ContextBuilder
	sms       channel.DeliveryChannel
	console   channel.DeliveryChannel
	email     channel.DeliveryChannel
	audit     AuditRecorder
	incidents IncidentUpdater
	logger    *zap.Logger
}

// NewDispatcher 创建报警派发器
func NewDispatcher(
	guardians GuardianDirectory,
	builder *ContextBuilder,
	sms channel.DeliveryChannel,
	console channel.DeliveryChannel,
	email channel.DeliveryChannel,
	audit AuditRecorder,
	incidents IncidentUpdater,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		guardians: guardians,
		builder:   builder,
		sms:       sms,
		console:   console,
		email:     email,
		audit:     audit,
		incidents: incidents,
		logger:    logger,
	}
}

// SendAlertToGuardian 向单个监护人派发报警
// 监护人不存在 → success=false + "Guardian not found"；内部异常 → success=false + 错误信息
// 该方法绝不 panic、绝不返回 error 之外的失败形态
func (d *Dispatcher) SendAlertToGuardian(
	ctx context.Context,
	guardianID string,
	alertType models.AlertType,
	data *models.AlertData,
) (result models.DeliveryResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic during alert dispatch",
				zap.String("guardian_id", guardianID),
				zap.Any("panic", r),
			)
			result = models.DeliveryResult{
				GuardianID: guardianID,
				Success:    false,
				Timestamp:  time.Now(),
				Error:      fmt.Sprintf("internal error: %v", r),
			}
		}
	}()

	guardian, err := d.guardians.GetGuardianByID(ctx, guardianID)
	if err != nil {
		d.logger.Warn("Guardian lookup failed",
			zap.String("guardian_id", guardianID),
			zap.Error(err),
		)
		return models.DeliveryResult{
			GuardianID: guardianID,
			Success:    false,
			Timestamp:  time.Now(),
			Error:      fmt.Sprintf("Guardian not found: %s", guardianID),
		}
	}

	wardID := ""
	if data != nil {
		wardID = data.WardID
	}

	alertCtx := d.builder.Build(ctx, *guardian, wardID, alertType, data)
	result = d.deliverWithFallback(ctx, alertCtx)
	d.recordAudit(ctx, alertCtx, result)
	return result
}

// SendAlertToAllGuardians 向某个 ward 的全部监护人并发派发报警
// 空监护人列表 → 空结果（区别于失败）；解析失败 → 记日志后返回空结果
// 结果顺序与监护人解析顺序一致，与各协程完成顺序无关
func (d *Dispatcher) SendAlertToAllGuardians(
	ctx context.Context,
	wardID string,
	alertType models.AlertType,
	data *models.AlertData,
) []models.DeliveryResult {
	guardians, err := d.guardians.FindActiveGuardians(ctx, wardID)
	if err != nil {
		// 解析失败与空列表对派发方等价（都不发报警），但日志必须可区分
		d.logger.Error("Failed to resolve guardians, no alerts will be sent",
			zap.String("ward_id", wardID),
			zap.String("alert_type", string(alertType)),
			zap.Error(err),
		)
		return []models.DeliveryResult{}
	}

	if len(guardians) == 0 {
		d.logger.Info("No active guardians for ward, nothing to dispatch",
			zap.String("ward_id", wardID),
			zap.String("alert_type", string(alertType)),
		)
		return []models.DeliveryResult{}
	}

	// 共享字段只补全一次，避免每个监护人重复查询
	data = d.enrichShared(ctx, wardID, data)

	// 并发扇出：每个监护人一个协程，按下标回填结果（settle-all，不短路）
	results := make([]models.DeliveryResult, len(guardians))
	var wg sync.WaitGroup

	for i, guardian := range guardians {
		wg.Add(1)
		go func(idx int, g models.GuardianInfo) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("Panic during guardian fan-out",
						zap.String("guardian_id", g.ID),
						zap.Any("panic", r),
					)
					results[idx] = models.DeliveryResult{
						GuardianID: g.ID,
						Success:    false,
						Timestamp:  time.Now(),
						Error:      fmt.Sprintf("internal error: %v", r),
					}
				}
			}()

			alertCtx := d.builder.Build(ctx, g, wardID, alertType, data)
			results[idx] = d.deliverWithFallback(ctx, alertCtx)
			d.recordAudit(ctx, alertCtx, results[idx])

			// 高优先级报警附带富内容邮件通知（补充性质，失败只记日志）
			d.sendSupplementaryEmail(ctx, alertCtx)
		}(i, guardian)
	}

	wg.Wait()

	successCount := 0
	for _, r := range results {
		if r.Success {
			successCount++
		}
	}
	d.logger.Info("Alert dispatch completed",
		zap.String("ward_id", wardID),
		zap.String("alert_type", string(alertType)),
		zap.Int("success_count", successCount),
		zap.Int("guardian_count", len(guardians)),
	)

	return results
}

// SendIncidentAlert 以事件为单位派发报警
// 将 incident_id 写入每个投递上下文的 metadata，并在派发完成后回填事件的已通知监护人列表
func (d *Dispatcher) SendIncidentAlert(
	ctx context.Context,
	wardID string,
	incidentID string,
	alertType models.AlertType,
	data *models.AlertData,
) []models.DeliveryResult {
	if data == nil {
		data = &models.AlertData{}
	}
	if data.Metadata == nil {
		data.Metadata = make(map[string]interface{})
	}
	data.Metadata["incident_id"] = incidentID

	results := d.SendAlertToAllGuardians(ctx, wardID, alertType, data)

	if len(results) > 0 && d.incidents != nil {
		if err := d.incidents.UpdateNotifiedGuardians(ctx, incidentID, results); err != nil {
			d.logger.Warn("Failed to record notified guardians on incident",
				zap.String("incident_id", incidentID),
				zap.Error(err),
			)
		}
	}

	return results
}

// enrichShared 补全所有监护人共享的字段（只做一次）
func (d *Dispatcher) enrichShared(ctx context.Context, wardID string, data *models.AlertData) *models.AlertData {
	if data == nil {
		data = &models.AlertData{}
	}
	if data.WardID == "" {
		data.WardID = wardID
	}

	if data.WardName == "" && wardID != "" {
		if ward, err := d.guardians.GetWardIdentity(ctx, wardID); err != nil {
			d.logger.Warn("Failed to look up ward identity for dispatch",
				zap.String("ward_id", wardID),
				zap.Error(err),
			)
		} else {
			data.WardName = ward.FullName()
		}
	}

	if data.DashboardLink == "" {
		data.DashboardLink = d.builder.DashboardLink(wardID)
	}

	return data
}

// deliverWithFallback 按回退顺序投递：SMS 优先，任何失败立即回退到 console
// console 是保底渠道，只有它也失败（意外情况）时结果才是 success=false
func (d *Dispatcher) deliverWithFallback(ctx context.Context, alertCtx *models.AlertContext) models.DeliveryResult {
	result := models.DeliveryResult{
		GuardianID: alertCtx.Guardian.ID,
		Timestamp:  time.Now(),
	}

	if d.sms != nil && d.sms.Usable(alertCtx.Guardian) {
		outcome, err := d.sms.Deliver(ctx, alertCtx)
		if err == nil {
			result.Success = true
			result.Channel = outcome.Channel
			result.ProviderMessageID = outcome.ProviderMessageID
			return result
		}
		d.logger.Warn("SMS delivery failed, falling back to console",
			zap.String("guardian_id", alertCtx.Guardian.ID),
			zap.Error(err),
		)
	}

	outcome, err := d.console.Deliver(ctx, alertCtx)
	if err != nil {
		// 保底渠道失败属于异常情况，需要进程级告警
		d.logger.Error("Console fallback delivery failed",
			zap.String("guardian_id", alertCtx.Guardian.ID),
			zap.Error(err),
		)
		result.Success = false
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Channel = outcome.Channel
	return result
}

// sendSupplementaryEmail 高优先级报警的补充邮件通知
func (d *Dispatcher) sendSupplementaryEmail(ctx context.Context, alertCtx *models.AlertContext) {
	if d.email == nil {
		return
	}
	if alertCtx.Priority != models.PriorityEmergency && alertCtx.Priority != models.PriorityCritical {
		return
	}
	if !d.email.Usable(alertCtx.Guardian) {
		return
	}

	if _, err := d.email.Deliver(ctx, alertCtx); err != nil {
		d.logger.Warn("Supplementary email delivery failed",
			zap.String("guardian_id", alertCtx.Guardian.ID),
			zap.Error(err),
		)
	}
}

// recordAudit 记录投递审计（尽力而为，失败只记日志）
func (d *Dispatcher) recordAudit(ctx context.Context, alertCtx *models.AlertContext, result models.DeliveryResult) {
	if d.audit == nil {
		return
	}

	attempt := &repository.DeliveryAttempt{
		AttemptID:   uuid.New().String(),
		GuardianID:  result.GuardianID,
		WardID:      alertCtx.WardID,
		AlertType:   string(alertCtx.AlertType),
		Channel:     result.Channel,
		Success:     result.Success,
		AttemptedAt: result.Timestamp,
	}

	if result.Error != "" {
		attempt.Error = &result.Error
	}
	if result.ProviderMessageID != "" {
		attempt.ProviderMessageID = &result.ProviderMessageID
	}
	if alertCtx.Metadata != nil {
		if incidentID, ok := alertCtx.Metadata["incident_id"].(string); ok && incidentID != "" {
			attempt.IncidentID = &incidentID
		}
	}

	if err := d.audit.RecordDelivery(ctx, attempt); err != nil {
		d.logger.Warn("Failed to record delivery audit",
			zap.String("guardian_id", result.GuardianID),
			zap.Error(err),
		)
	}
}
