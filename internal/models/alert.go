package models

import (
	"time"
)

// GuardianInfo 监护人信息（来自 guardian_relationships JOIN users）
type GuardianInfo struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// FullName 监护人全名
func (g *GuardianInfo) FullName() string {
	if g.FirstName == "" {
		return g.LastName
	}
	if g.LastName == "" {
		return g.FirstName
	}
	return g.FirstName + " " + g.LastName
}

// WardInfo 被监护人信息
type WardInfo struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FullName 被监护人全名
func (w *WardInfo) FullName() string {
	if w.FirstName == "" {
		return w.LastName
	}
	if w.LastName == "" {
		return w.FirstName
	}
	return w.FirstName + " " + w.LastName
}

// AlertData 上游传入的报警数据（允许部分字段缺失，缺失字段由 ContextBuilder 补全）
type AlertData struct {
	WardID        string                 `json:"ward_id,omitempty"`
	WardName      string                 `json:"ward_name,omitempty"`
	Message       string                 `json:"message,omitempty"`
	Priority      Priority               `json:"priority,omitempty"`
	Location      *Location              `json:"location,omitempty"`
	DashboardLink string                 `json:"dashboard_link,omitempty"`
	Timestamp     *time.Time             `json:"timestamp,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// AlertContext 单个监护人的完整报警上下文（每次派发时新建，不落库）
type AlertContext struct {
	Guardian         GuardianInfo           `json:"guardian"`
	WardID           string                 `json:"ward_id"`
	WardName         string                 `json:"ward_name"`
	AlertType        AlertType              `json:"alert_type"`
	Priority         Priority               `json:"priority"`
	RequiresResponse bool                   `json:"requires_response"`
	Message          string                 `json:"message"`
	Location         *Location              `json:"location,omitempty"`
	DashboardLink    string                 `json:"dashboard_link"`
	Timestamp        time.Time              `json:"timestamp"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// 投递渠道名称
const (
	ChannelSMS     = "sms"
	ChannelConsole = "console"
	ChannelEmail   = "email"
)

// DeliveryResult 单个监护人的投递结果
// 每次派发调用对每个监护人恰好产生一条结果，即使所有渠道都失败
type DeliveryResult struct {
	GuardianID        string    `json:"guardian_id"`
	Success           bool      `json:"success"`
	Channel           string    `json:"channel"`
	Timestamp         time.Time `json:"timestamp"`
	Error             string    `json:"error,omitempty"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
}

// DeliveryOutcome 单次渠道投递的结果（渠道内部返回）
type DeliveryOutcome struct {
	Channel           string `json:"channel"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}
