package channel

import (
	"context"
	"fmt"
	"time"

	"wardlink-alert/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// EmailRequest 邮件服务商 API 请求
type EmailRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// EmailResponse 邮件服务商 API 响应
type EmailResponse struct {
	ID           string `json:"id"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// EmailChannel 邮件投递渠道（富内容事件通知，独立于快速短信/控制台路径）
// 补充性质的通知：任何失败都静默降级（返回 false），绝不中断派发
type EmailChannel struct {
	httpClient  *resty.Client
	fromAddress string
	configured  bool
	logger      *zap.Logger
}

// NewEmailChannel 创建邮件渠道
func NewEmailChannel(baseURL, apiKey, fromAddress string, logger *zap.Logger) *EmailChannel {
	configured := baseURL != "" && apiKey != ""

	var client *resty.Client
	if configured {
		client = resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	}

	return &EmailChannel{
		httpClient:  client,
		fromAddress: fromAddress,
		configured:  configured,
		logger:      logger,
	}
}

// Name 渠道名称
func (c *EmailChannel) Name() string {
	return models.ChannelEmail
}

// Usable 服务商已配置且监护人有邮箱
func (c *EmailChannel) Usable(guardian models.GuardianInfo) bool {
	return c.configured && guardian.Email != ""
}

// Deliver 发送富内容事件通知邮件
func (c *EmailChannel) Deliver(ctx context.Context, alertCtx *models.AlertContext) (*models.DeliveryOutcome, error) {
	if !c.Usable(alertCtx.Guardian) {
		return nil, ErrChannelUnusable
	}

	request := EmailRequest{
		To:      alertCtx.Guardian.Email,
		From:    c.fromAddress,
		Subject: fmt.Sprintf("[WardLink %s] %s alert for %s", alertCtx.Priority, alertCtx.AlertType, alertCtx.WardName),
		Text:    ComposeEmailText(alertCtx),
		HTML:    ComposeEmailHTML(alertCtx),
	}

	var response EmailResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/send")

	if err != nil {
		return nil, fmt.Errorf("failed to call email provider: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("email provider rejected message: %s (status: %d)", response.ErrorMessage, resp.StatusCode())
	}

	c.logger.Debug("Email delivered",
		zap.String("guardian_id", alertCtx.Guardian.ID),
		zap.String("provider_message_id", response.ID),
	)

	return &models.DeliveryOutcome{
		Channel:           models.ChannelEmail,
		ProviderMessageID: response.ID,
	}, nil
}

// MapLinks 根据经纬度生成两个地图服务的链接
func MapLinks(loc *models.Location) (googleMaps, openStreetMap string) {
	if loc == nil {
		return "", ""
	}
	googleMaps = fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", loc.Latitude, loc.Longitude)
	openStreetMap = fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=17/%.6f/%.6f",
		loc.Latitude, loc.Longitude, loc.Latitude, loc.Longitude)
	return googleMaps, openStreetMap
}

// ComposeEmailText 组装纯文本邮件正文
func ComposeEmailText(alertCtx *models.AlertContext) string {
	text := fmt.Sprintf(
		"%s\n\nAlert type: %s\nPriority: %s\nWard: %s\nTime: %s\n",
		alertCtx.Message,
		alertCtx.AlertType,
		alertCtx.Priority,
		alertCtx.WardName,
		alertCtx.Timestamp.Format(time.RFC1123),
	)

	if alertCtx.Location != nil {
		gmap, osm := MapLinks(alertCtx.Location)
		text += fmt.Sprintf("Location: %.6f,%.6f\nGoogle Maps: %s\nOpenStreetMap: %s\n",
			alertCtx.Location.Latitude, alertCtx.Location.Longitude, gmap, osm)
	} else {
		text += "Location: Unknown\n"
	}

	if alertCtx.RequiresResponse {
		text += "\nThis alert requires your response.\n"
	}

	text += fmt.Sprintf("\nOpen the dashboard: %s\n", alertCtx.DashboardLink)

	return text
}

// ComposeEmailHTML 组装 HTML 邮件正文（事件详情表格 + 地图链接 + 行动号召按钮）
func ComposeEmailHTML(alertCtx *models.AlertContext) string {
	locationCell := "Unknown"
	mapLinksRow := ""
	if alertCtx.Location != nil {
		gmap, osm := MapLinks(alertCtx.Location)
		locationCell = fmt.Sprintf("%.6f, %.6f", alertCtx.Location.Latitude, alertCtx.Location.Longitude)
		mapLinksRow = fmt.Sprintf(
			`<tr><td><b>Map</b></td><td><a href="%s">Google Maps</a> | <a href="%s">OpenStreetMap</a></td></tr>`,
			gmap, osm,
		)
	}

	responseNote := ""
	if alertCtx.RequiresResponse {
		responseNote = `<p style="color:#c0392b;"><b>This alert requires your response.</b></p>`
	}

	return fmt.Sprintf(`<html>
<body style="font-family:Arial,sans-serif;">
<h2 style="color:#c0392b;">%s</h2>
<p>%s</p>
<table border="1" cellpadding="6" cellspacing="0" style="border-collapse:collapse;">
<tr><td><b>Alert type</b></td><td>%s</td></tr>
<tr><td><b>Priority</b></td><td>%s</td></tr>
<tr><td><b>Ward</b></td><td>%s</td></tr>
<tr><td><b>Time</b></td><td>%s</td></tr>
<tr><td><b>Location</b></td><td>%s</td></tr>
%s
</table>
%s
<p><a href="%s" style="display:inline-block;padding:10px 20px;background:#c0392b;color:#fff;text-decoration:none;border-radius:4px;">View on Dashboard</a></p>
</body>
</html>`,
		alertCtx.AlertType,
		alertCtx.Message,
		alertCtx.AlertType,
		alertCtx.Priority,
		alertCtx.WardName,
		alertCtx.Timestamp.Format(time.RFC1123),
		locationCell,
		mapLinksRow,
		responseNote,
		alertCtx.DashboardLink,
	)
}
