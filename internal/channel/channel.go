package channel

import (
	"context"
	"errors"

	"wardlink-alert/internal/models"
)

// ErrChannelUnusable 渠道对该监护人不可用（未配置服务商、缺少联系方式等）
// 派发方收到该错误后应立即尝试下一级渠道
var ErrChannelUnusable = errors.New("delivery channel unusable")

// DeliveryChannel 投递渠道接口
// 每个渠道负责格式化渠道适配的消息并上报成功/失败
type DeliveryChannel interface {
	// Name 渠道名称（"sms" / "console" / "email"）
	Name() string

	// Usable 该渠道对指定监护人是否可用
	Usable(guardian models.GuardianInfo) bool

	// Deliver 向监护人投递报警
	Deliver(ctx context.Context, alertCtx *models.AlertContext) (*models.DeliveryOutcome, error)
}
