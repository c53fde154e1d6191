package channel

import (
	"context"
	"fmt"

	"wardlink-alert/internal/models"

	"go.uber.org/zap"
)

// ConsoleChannel 控制台投递渠道（保底渠道）
// 将完整的报警内容写入结构化日志，永远可用、永远成功
// 系统在没有任何外部渠道时也必须留下一条报警投递记录
type ConsoleChannel struct {
	logger *zap.Logger
}

// NewConsoleChannel 创建控制台渠道
func NewConsoleChannel(logger *zap.Logger) *ConsoleChannel {
	return &ConsoleChannel{
		logger: logger,
	}
}

// Name 渠道名称
func (c *ConsoleChannel) Name() string {
	return models.ChannelConsole
}

// Usable 保底渠道永远可用
func (c *ConsoleChannel) Usable(guardian models.GuardianInfo) bool {
	return true
}

// Deliver 输出完整报警日志
func (c *ConsoleChannel) Deliver(ctx context.Context, alertCtx *models.AlertContext) (*models.DeliveryOutcome, error) {
	locationStr := "Location: Unknown"
	if alertCtx.Location != nil {
		locationStr = formatLocation(alertCtx.Location)
	}

	c.logger.Warn("GUARDIAN ALERT",
		zap.String("guardian_id", alertCtx.Guardian.ID),
		zap.String("guardian_name", alertCtx.Guardian.FullName()),
		zap.String("alert_type", string(alertCtx.AlertType)),
		zap.String("priority", string(alertCtx.Priority)),
		zap.Bool("requires_response", alertCtx.RequiresResponse),
		zap.String("ward_id", alertCtx.WardID),
		zap.String("ward_name", alertCtx.WardName),
		zap.String("message", alertCtx.Message),
		zap.String("location", locationStr),
		zap.String("dashboard_link", alertCtx.DashboardLink),
		zap.Time("alert_timestamp", alertCtx.Timestamp),
	)

	return &models.DeliveryOutcome{
		Channel: models.ChannelConsole,
	}, nil
}

func formatLocation(loc *models.Location) string {
	if loc.Accuracy != nil {
		return fmt.Sprintf("Location: %.5f,%.5f (±%.0fm)", loc.Latitude, loc.Longitude, *loc.Accuracy)
	}
	return fmt.Sprintf("Location: %.5f,%.5f", loc.Latitude, loc.Longitude)
}
