package channel

import (
	"context"
	"fmt"
	"time"

	"wardlink-alert/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// 短信长度上限（单条 GSM 短信）
const smsMaxLength = 160

// SMSRequest 短信服务商 API 请求
type SMSRequest struct {
	Body string `json:"body"`
	From string `json:"from"`
	To   string `json:"to"`
}

// SMSResponse 短信服务商 API 响应
type SMSResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SMSChannel 短信投递渠道（HTTP 短信服务商 API）
// 仅当服务商已配置且监护人有手机号时可用
type SMSChannel struct {
	httpClient *resty.Client
	fromNumber string
	configured bool
	logger     *zap.Logger
}

// NewSMSChannel 创建短信渠道
// baseURL 为空表示服务商未配置，渠道对所有监护人不可用
func NewSMSChannel(baseURL, accountID, authToken, fromNumber string, logger *zap.Logger) *SMSChannel {
	configured := baseURL != "" && accountID != "" && fromNumber != ""

	var client *resty.Client
	if configured {
		client = resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Second). // 服务商级超时，避免无界挂起
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			SetBasicAuth(accountID, authToken).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	}

	return &SMSChannel{
		httpClient: client,
		fromNumber: fromNumber,
		configured: configured,
		logger:     logger,
	}
}

// Name 渠道名称
func (c *SMSChannel) Name() string {
	return models.ChannelSMS
}

// Usable 服务商已配置且监护人有手机号
func (c *SMSChannel) Usable(guardian models.GuardianInfo) bool {
	return c.configured && guardian.PhoneNumber != ""
}

// Deliver 发送报警短信
func (c *SMSChannel) Deliver(ctx context.Context, alertCtx *models.AlertContext) (*models.DeliveryOutcome, error) {
	if !c.Usable(alertCtx.Guardian) {
		return nil, ErrChannelUnusable
	}

	body := ComposeSMSBody(alertCtx)

	request := SMSRequest{
		Body: body,
		From: c.fromNumber,
		To:   alertCtx.Guardian.PhoneNumber,
	}

	var response SMSResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/messages")

	if err != nil {
		return nil, fmt.Errorf("failed to call SMS provider: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("SMS provider rejected message: %s (status: %d)", response.ErrorMessage, resp.StatusCode())
	}

	c.logger.Debug("SMS delivered",
		zap.String("guardian_id", alertCtx.Guardian.ID),
		zap.String("provider_message_id", response.ID),
	)

	return &models.DeliveryOutcome{
		Channel:           models.ChannelSMS,
		ProviderMessageID: response.ID,
	}, nil
}

// ComposeSMSBody 组装短信正文
// 格式：[类型] 被监护人名 - 消息 (坐标) 链接；超长时截断为 157 字符 + "..."
func ComposeSMSBody(alertCtx *models.AlertContext) string {
	body := fmt.Sprintf("[%s] %s - %s", alertCtx.AlertType, alertCtx.WardName, alertCtx.Message)

	if alertCtx.Location != nil {
		body += fmt.Sprintf(" (%.5f,%.5f)", alertCtx.Location.Latitude, alertCtx.Location.Longitude)
	}

	if alertCtx.DashboardLink != "" {
		body += " " + alertCtx.DashboardLink
	}

	if len(body) > smsMaxLength {
		body = body[:smsMaxLength-3] + "..."
	}

	return body
}
