package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wardlink-alert/internal/config"
	"wardlink-alert/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PreIncidentBuffer 预事件缓冲区（每个 ward 一个短时环形缓冲，存放事件发生前的位置/传感器样本）
// 底层是 Redis 列表：LPUSH 追加 → LTRIM 截断到最近 N 条 → EXPIRE 刷新整键 TTL
type PreIncidentBuffer struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewPreIncidentBuffer 创建预事件缓冲区
func NewPreIncidentBuffer(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *PreIncidentBuffer {
	return &PreIncidentBuffer{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// locationKey 构建位置样本列表键
func (b *PreIncidentBuffer) locationKey(wardID string) string {
	return fmt.Sprintf("%s%s%s",
		b.config.Alert.Buffer.KeyPrefix,
		wardID,
		b.config.Alert.Buffer.LocationSuffix,
	)
}

// sensorKey 构建传感器样本列表键
func (b *PreIncidentBuffer) sensorKey(wardID string) string {
	return fmt.Sprintf("%s%s%s",
		b.config.Alert.Buffer.KeyPrefix,
		wardID,
		b.config.Alert.Buffer.SensorSuffix,
	)
}

// AppendLocation 追加位置样本
func (b *PreIncidentBuffer) AppendLocation(ctx context.Context, wardID string, sample models.LocationSample) error {
	if wardID == "" {
		return fmt.Errorf("ward_id is required")
	}
	if sample.Timestamp == 0 {
		sample.Timestamp = time.Now().UnixMilli()
	}

	jsonData, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal location sample: %w", err)
	}

	return b.push(ctx, b.locationKey(wardID), jsonData)
}

// AppendSensor 追加传感器样本
func (b *PreIncidentBuffer) AppendSensor(ctx context.Context, wardID string, sample models.SensorSample) error {
	if wardID == "" {
		return fmt.Errorf("ward_id is required")
	}
	if sample.Timestamp == 0 {
		sample.Timestamp = time.Now().UnixMilli()
	}

	jsonData, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sensor sample: %w", err)
	}

	return b.push(ctx, b.sensorKey(wardID), jsonData)
}

// push 写入列表：LPUSH → LTRIM 最近 N 条 → EXPIRE 刷新 TTL
// 依赖 Redis 单条命令的原子性，组件自身不加锁
func (b *PreIncidentBuffer) push(ctx context.Context, key string, jsonData []byte) error {
	maxSamples := b.config.Alert.Buffer.MaxSamples
	ttl := time.Duration(b.config.Alert.Buffer.TTLSeconds) * time.Second

	pipe := b.redisClient.Pipeline()
	pipe.LPush(ctx, key, jsonData)
	pipe.LTrim(ctx, key, 0, int64(maxSamples-1))
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push buffer sample: %w", err)
	}

	return nil
}

// Snapshot 读取某个 ward 的缓冲区快照
// 底层列表是 LPUSH 写入的（新→旧），读出后反转为时间正序（旧→新）
// 任何读取错误都降级为空快照，绝不影响事件创建
func (b *PreIncidentBuffer) Snapshot(ctx context.Context, wardID string) *models.PreIncidentSnapshot {
	snapshot := &models.PreIncidentSnapshot{
		LocationSamples: []models.LocationSample{},
		SensorSamples:   []models.SensorSample{},
		RetrievedAt:     time.Now(),
	}

	if wardID == "" {
		return snapshot
	}

	// 位置样本
	locationVals, err := b.redisClient.LRange(ctx, b.locationKey(wardID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		b.logger.Warn("Failed to read location buffer, returning empty snapshot",
			zap.String("ward_id", wardID),
			zap.Error(err),
		)
	} else {
		for i := len(locationVals) - 1; i >= 0; i-- {
			var sample models.LocationSample
			if err := json.Unmarshal([]byte(locationVals[i]), &sample); err != nil {
				b.logger.Warn("Failed to unmarshal location sample, skipping",
					zap.String("ward_id", wardID),
					zap.Error(err),
				)
				continue
			}
			snapshot.LocationSamples = append(snapshot.LocationSamples, sample)
		}
	}

	// 传感器样本
	sensorVals, err := b.redisClient.LRange(ctx, b.sensorKey(wardID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		b.logger.Warn("Failed to read sensor buffer, returning empty snapshot",
			zap.String("ward_id", wardID),
			zap.Error(err),
		)
	} else {
		for i := len(sensorVals) - 1; i >= 0; i-- {
			var sample models.SensorSample
			if err := json.Unmarshal([]byte(sensorVals[i]), &sample); err != nil {
				b.logger.Warn("Failed to unmarshal sensor sample, skipping",
					zap.String("ward_id", wardID),
					zap.Error(err),
				)
				continue
			}
			snapshot.SensorSamples = append(snapshot.SensorSamples, sample)
		}
	}

	return snapshot
}

// Clear 清空某个 ward 的缓冲区（会话结束或事件消费后调用）
func (b *PreIncidentBuffer) Clear(ctx context.Context, wardID string) error {
	if wardID == "" {
		return fmt.Errorf("ward_id is required")
	}

	if err := b.redisClient.Del(ctx, b.locationKey(wardID), b.sensorKey(wardID)).Err(); err != nil {
		return fmt.Errorf("failed to clear buffer: %w", err)
	}

	return nil
}
