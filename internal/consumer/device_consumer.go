package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wardlink-alert/internal/buffer"
	"wardlink-alert/internal/config"
	"wardlink-alert/internal/dispatcher"
	"wardlink-alert/internal/models"
	"wardlink-alert/internal/repository"
	"wardlink-alert/internal/settings"
	"wardlink-alert/pkg/mqtt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 设备上报主题（{ward_id} 为第二段）
const (
	topicLocation = "wardlink/+/location"
	topicSensor   = "wardlink/+/sensor"
	topicIncident = "wardlink/+/incident"
)

// IncidentMessage 设备上报的事件消息
type IncidentMessage struct {
	Type        string   `json:"type"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Accuracy    *float64 `json:"accuracy,omitempty"`
	Description string   `json:"description,omitempty"`
	Message     string   `json:"message,omitempty"`
	Timestamp   *int64   `json:"timestamp,omitempty"` // Unix 毫秒时间戳
}

// DeviceConsumer 设备消息消费者
// 订阅移动端上报：位置/传感器样本进预事件缓冲区，事件消息触发落库和后台派发
type DeviceConsumer struct {
	config        *config.Config
	mqttClient    *mqtt.Client
	preBuffer     *buffer.PreIncidentBuffer
	incidentRepo  *repository.IncidentRepository
	dispatcher    *dispatcher.Dispatcher
	worker        *dispatcher.Worker
	settingsCache *settings.Cache
	logger        *zap.Logger
}

// NewDeviceConsumer 创建设备消息消费者
func NewDeviceConsumer(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	preBuffer *buffer.PreIncidentBuffer,
	incidentRepo *repository.IncidentRepository,
	disp *dispatcher.Dispatcher,
	worker *dispatcher.Worker,
	settingsCache *settings.Cache,
	logger *zap.Logger,
) *DeviceConsumer {
	return &DeviceConsumer{
		config:        cfg,
		mqttClient:    mqttClient,
		preBuffer:     preBuffer,
		incidentRepo:  incidentRepo,
		dispatcher:    disp,
		worker:        worker,
		settingsCache: settingsCache,
		logger:        logger,
	}
}

// Start 启动消费者
func (c *DeviceConsumer) Start(ctx context.Context) error {
	qos := c.config.MQTT.QoS

	if err := c.mqttClient.Subscribe(topicLocation, qos, c.handleLocation); err != nil {
		return fmt.Errorf("failed to subscribe to location topic: %w", err)
	}
	if err := c.mqttClient.Subscribe(topicSensor, qos, c.handleSensor); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}
	if err := c.mqttClient.Subscribe(topicIncident, qos, c.handleIncident); err != nil {
		return fmt.Errorf("failed to subscribe to incident topic: %w", err)
	}

	c.logger.Info("Device consumer started",
		zap.String("location_topic", topicLocation),
		zap.String("sensor_topic", topicSensor),
		zap.String("incident_topic", topicIncident),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *DeviceConsumer) Stop() {
	if err := c.mqttClient.Unsubscribe(topicLocation, topicSensor, topicIncident); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("Device consumer stopped")
}

// wardIDFromTopic 从主题中提取 ward_id
// 主题格式: wardlink/{ward_id}/location|sensor|incident
func wardIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[1] == "" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	return parts[1], nil
}

// handleLocation 处理位置样本消息
func (c *DeviceConsumer) handleLocation(topic string, payload []byte) error {
	wardID, err := wardIDFromTopic(topic)
	if err != nil {
		return err
	}

	var sample models.LocationSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return fmt.Errorf("failed to unmarshal location sample: %w", err)
	}

	ctx := context.Background()
	if err := c.preBuffer.AppendLocation(ctx, wardID, sample); err != nil {
		// 缓冲区不可用只降级，不影响后续消息
		c.logger.Warn("Failed to buffer location sample",
			zap.String("ward_id", wardID),
			zap.Error(err),
		)
	}

	return nil
}

// handleSensor 处理传感器样本消息
func (c *DeviceConsumer) handleSensor(topic string, payload []byte) error {
	wardID, err := wardIDFromTopic(topic)
	if err != nil {
		return err
	}

	var sample models.SensorSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return fmt.Errorf("failed to unmarshal sensor sample: %w", err)
	}

	ctx := context.Background()
	if err := c.preBuffer.AppendSensor(ctx, wardID, sample); err != nil {
		c.logger.Warn("Failed to buffer sensor sample",
			zap.String("ward_id", wardID),
			zap.Error(err),
		)
	}

	return nil
}

// handleIncident 处理事件消息
// 流程：类型校验 → 重复抑制 → 缓冲区快照+清空 → 事件落库 → 后台派发
// 设备侧不等待派发结果：派发任务提交到 Worker 后立即返回
func (c *DeviceConsumer) handleIncident(topic string, payload []byte) error {
	wardID, err := wardIDFromTopic(topic)
	if err != nil {
		return err
	}

	var msg IncidentMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal incident message: %w", err)
	}

	alertType := models.AlertType(msg.Type)
	if !alertType.IsValid() {
		return fmt.Errorf("unknown incident type: %s", msg.Type)
	}

	ctx := context.Background()

	// 重复报警抑制：同 ward 同类型在窗口内已有事件则跳过
	// SOS 和 panic button 是人为主动触发，永不抑制
	if c.shouldSuppress(ctx, wardID, alertType) {
		c.logger.Info("Duplicate incident suppressed",
			zap.String("ward_id", wardID),
			zap.String("alert_type", string(alertType)),
		)
		return nil
	}

	incident := c.buildIncident(ctx, wardID, alertType, &msg)

	if err := c.incidentRepo.CreateIncident(ctx, incident); err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}

	c.logger.Info("Incident created",
		zap.String("event_id", incident.EventID),
		zap.String("ward_id", wardID),
		zap.String("alert_type", string(alertType)),
		zap.String("priority", string(incident.Priority)),
	)

	// 派发走后台队列（fire-and-forget），失败只记日志
	c.enqueueDispatch(incident, &msg)

	return nil
}

// shouldSuppress 是否抑制该事件（重复报警窗口内）
func (c *DeviceConsumer) shouldSuppress(ctx context.Context, wardID string, alertType models.AlertType) bool {
	if alertType == models.AlertSOSTriggered || alertType == models.AlertPanicButton {
		return false
	}

	window := c.config.Alert.DedupWindowMinutes
	if c.settingsCache != nil {
		window = c.settingsCache.GetNumber(ctx, "alert.dedup_window_minutes", window)
	}
	if window <= 0 {
		return false
	}

	recent, err := c.incidentRepo.GetRecentIncident(ctx, wardID, alertType, window)
	if err != nil {
		// 抑制检查失败时放行：宁可重复报警也不能漏报
		c.logger.Warn("Duplicate check failed, dispatching anyway",
			zap.String("ward_id", wardID),
			zap.Error(err),
		)
		return false
	}

	return recent != nil
}

// buildIncident 构建事件记录（含预事件缓冲区快照）
func (c *DeviceConsumer) buildIncident(ctx context.Context, wardID string, alertType models.AlertType, msg *IncidentMessage) *models.Incident {
	now := time.Now()

	triggeredAt := now
	if msg.Timestamp != nil {
		triggeredAt = time.UnixMilli(*msg.Timestamp)
	}

	// 快照是辅助上下文：序列化失败降级为空对象，绝不阻塞事件创建
	snapshot := c.preBuffer.Snapshot(ctx, wardID)
	snapshotJSON := "{}"
	if data, err := json.Marshal(snapshot); err != nil {
		c.logger.Warn("Failed to marshal pre-incident snapshot",
			zap.String("ward_id", wardID),
			zap.Error(err),
		)
	} else {
		snapshotJSON = string(data)
	}

	// 快照消费完毕后清空缓冲区
	if err := c.preBuffer.Clear(ctx, wardID); err != nil {
		c.logger.Warn("Failed to clear pre-incident buffer",
			zap.String("ward_id", wardID),
			zap.Error(err),
		)
	}

	incident := &models.Incident{
		EventID:           uuid.New().String(),
		WardID:            wardID,
		AlertType:         alertType,
		Priority:          models.DefaultPriority(alertType),
		Status:            models.IncidentStatusActive,
		TriggeredAt:       triggeredAt,
		Latitude:          msg.Latitude,
		Longitude:         msg.Longitude,
		Accuracy:          msg.Accuracy,
		PreIncidentData:   snapshotJSON,
		NotifiedGuardians: "[]",
		Metadata:          "{}",
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if msg.Description != "" {
		incident.Description = &msg.Description
	}

	return incident
}

// enqueueDispatch 把派发任务提交到后台队列
func (c *DeviceConsumer) enqueueDispatch(incident *models.Incident, msg *IncidentMessage) {
	wardID := incident.WardID
	eventID := incident.EventID
	alertType := incident.AlertType

	data := &models.AlertData{
		WardID:  wardID,
		Message: msg.Message,
	}
	if incident.Latitude != nil && incident.Longitude != nil {
		data.Location = &models.Location{
			Latitude:  *incident.Latitude,
			Longitude: *incident.Longitude,
			Accuracy:  incident.Accuracy,
		}
	}

	err := c.worker.Enqueue(func(ctx context.Context) {
		c.dispatcher.SendIncidentAlert(ctx, wardID, eventID, alertType, data)
	})
	if err != nil {
		c.logger.Error("Failed to enqueue alert dispatch",
			zap.String("event_id", eventID),
			zap.String("ward_id", wardID),
			zap.Error(err),
		)
	}
}
