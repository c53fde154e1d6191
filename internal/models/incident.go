package models

import (
	"time"
)

// Incident 安全事件（对应 incident_events 表）
type Incident struct {
	EventID           string     `json:"event_id" db:"event_id"`
	WardID            string     `json:"ward_id" db:"ward_id"`
	AlertType         AlertType  `json:"alert_type" db:"alert_type"`
	Priority          Priority   `json:"priority" db:"priority"`
	Status            string     `json:"status" db:"status"` // active, acknowledged, resolved
	TriggeredAt       time.Time  `json:"triggered_at" db:"triggered_at"`
	HandledAt         *time.Time `json:"handled_at,omitempty" db:"handled_at"`
	Latitude          *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude         *float64   `json:"longitude,omitempty" db:"longitude"`
	Accuracy          *float64   `json:"accuracy,omitempty" db:"accuracy"`
	Description       *string    `json:"description,omitempty" db:"description"`
	Handler           *string    `json:"handler,omitempty" db:"handler"`
	Notes             *string    `json:"notes,omitempty" db:"notes"`
	PreIncidentData   string     `json:"pre_incident_data" db:"pre_incident_data"`     // JSONB
	NotifiedGuardians string     `json:"notified_guardians" db:"notified_guardians"`   // JSONB
	Metadata          string     `json:"metadata" db:"metadata"`                       // JSONB
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// 事件状态常量
const (
	IncidentStatusActive       = "active"
	IncidentStatusAcknowledged = "acknowledged"
	IncidentStatusResolved     = "resolved"
)

// Location 位置信息
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// LocationSample 位置样本（预事件缓冲区条目）
type LocationSample struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Timestamp int64    `json:"timestamp"` // Unix 毫秒时间戳
}

// SensorSample 传感器样本（预事件缓冲区条目）
type SensorSample struct {
	AccelX    float64 `json:"accel_x"`
	AccelY    float64 `json:"accel_y"`
	AccelZ    float64 `json:"accel_z"`
	GyroX     float64 `json:"gyro_x"`
	GyroY     float64 `json:"gyro_y"`
	GyroZ     float64 `json:"gyro_z"`
	Timestamp int64   `json:"timestamp"` // Unix 毫秒时间戳
}

// PreIncidentSnapshot 事件发生前的缓冲区快照
type PreIncidentSnapshot struct {
	LocationSamples []LocationSample `json:"location_samples"`
	SensorSamples   []SensorSample   `json:"sensor_samples"`
	RetrievedAt     time.Time        `json:"retrieved_at"`
}
