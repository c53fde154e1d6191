package dispatcher

import (
	"context"
	"fmt"
	"time"

	"wardlink-alert/internal/models"

	"go.uber.org/zap"
)

// WardIdentitySource 被监护人身份数据源（缺失 ward_name 时补一次查询）
type WardIdentitySource interface {
	GetWardIdentity(ctx context.Context, wardID string) (*models.WardInfo, error)
}

// ContextBuilder 报警上下文构建器
// 将部分填充的报警数据补全为单个监护人的完整投递上下文
// 构建过程绝不硬失败：补全出错时返回已构建的尽力而为上下文
type ContextBuilder struct {
	wards            WardIdentitySource
	dashboardBaseURL string
	logger           *zap.Logger
}

// NewContextBuilder 创建上下文构建器
func NewContextBuilder(wards WardIdentitySource, dashboardBaseURL string, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{
		wards:            wards,
		dashboardBaseURL: dashboardBaseURL,
		logger:           logger,
	}
}

// Build 构建单个监护人的报警上下文
// 补全规则：
// - ward_name 缺失 → 查询一次被监护人身份
// - dashboard_link 缺失 → 由基础地址 + ward_id 合成
// - timestamp 缺失 → 取当前时间
// - message 缺失 → 按报警类型合成默认消息
// - priority 缺失 → 按类型→优先级表推导（调用方显式指定时不覆盖）
func (b *ContextBuilder) Build(
	ctx context.Context,
	guardian models.GuardianInfo,
	wardID string,
	alertType models.AlertType,
	data *models.AlertData,
) *models.AlertContext {
	if data == nil {
		data = &models.AlertData{}
	}

	alertCtx := &models.AlertContext{
		Guardian:  guardian,
		WardID:    wardID,
		AlertType: alertType,
		Metadata:  data.Metadata,
	}

	// 被监护人名称
	alertCtx.WardName = data.WardName
	if alertCtx.WardName == "" && wardID != "" {
		if ward, err := b.wards.GetWardIdentity(ctx, wardID); err != nil {
			// 补全失败不中断，继续用占位名称
			b.logger.Warn("Failed to look up ward identity for alert context",
				zap.String("ward_id", wardID),
				zap.Error(err),
			)
		} else {
			alertCtx.WardName = ward.FullName()
		}
	}
	if alertCtx.WardName == "" {
		alertCtx.WardName = "your ward"
	}

	// 优先级和响应要求
	if data.Priority != "" {
		alertCtx.Priority = data.Priority
	} else {
		alertCtx.Priority = models.DefaultPriority(alertType)
	}
	alertCtx.RequiresResponse = models.RequiresResponse(alertType)

	// 消息正文
	if data.Message != "" {
		alertCtx.Message = data.Message
	} else {
		alertCtx.Message = models.DefaultMessage(alertType, alertCtx.WardName)
	}

	// 位置
	alertCtx.Location = data.Location

	// 控制台深度链接
	if data.DashboardLink != "" {
		alertCtx.DashboardLink = data.DashboardLink
	} else {
		alertCtx.DashboardLink = b.DashboardLink(wardID)
	}

	// 时间戳
	if data.Timestamp != nil {
		alertCtx.Timestamp = *data.Timestamp
	} else {
		alertCtx.Timestamp = time.Now()
	}

	return alertCtx
}

// DashboardLink 由基础地址和 ward_id 合成控制台深度链接
func (b *ContextBuilder) DashboardLink(wardID string) string {
	if wardID == "" {
		return b.dashboardBaseURL
	}
	return fmt.Sprintf("%s/wards/%s", b.dashboardBaseURL, wardID)
}
