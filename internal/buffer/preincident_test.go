package buffer

import (
	"context"
	"testing"
	"time"

	"wardlink-alert/internal/config"
	"wardlink-alert/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestBuffer(t *testing.T) (*miniredis.Miniredis, *PreIncidentBuffer) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Alert.Buffer.KeyPrefix = "wardlink:ward:"
	cfg.Alert.Buffer.LocationSuffix = ":location"
	cfg.Alert.Buffer.SensorSuffix = ":sensor"
	cfg.Alert.Buffer.MaxSamples = 60
	cfg.Alert.Buffer.TTLSeconds = 600

	logger := zap.NewNop()
	preBuffer := NewPreIncidentBuffer(cfg, redisClient, logger)

	return mr, preBuffer
}

func TestPreIncidentBuffer_AppendAndSnapshot(t *testing.T) {
	_, preBuffer := setupTestBuffer(t)

	ctx := context.Background()
	wardID := "ward-123"

	err := preBuffer.AppendLocation(ctx, wardID, models.LocationSample{
		Latitude:  59.32932,
		Longitude: 18.06858,
		Timestamp: 1000,
	})
	require.NoError(t, err)

	err = preBuffer.AppendLocation(ctx, wardID, models.LocationSample{
		Latitude:  59.32940,
		Longitude: 18.06870,
		Timestamp: 2000,
	})
	require.NoError(t, err)

	snapshot := preBuffer.Snapshot(ctx, wardID)
	require.NotNil(t, snapshot)
	require.Len(t, snapshot.LocationSamples, 2)

	// 时间正序（旧→新）
	assert.Equal(t, int64(1000), snapshot.LocationSamples[0].Timestamp)
	assert.Equal(t, int64(2000), snapshot.LocationSamples[1].Timestamp)
	assert.Empty(t, snapshot.SensorSamples)
	assert.False(t, snapshot.RetrievedAt.IsZero())
}

func TestPreIncidentBuffer_TrimsToMaxSamples(t *testing.T) {
	_, preBuffer := setupTestBuffer(t)

	ctx := context.Background()
	wardID := "ward-123"

	// 追加 70 条，只保留最近 60 条
	for i := 1; i <= 70; i++ {
		err := preBuffer.AppendSensor(ctx, wardID, models.SensorSample{
			AccelX:    float64(i),
			Timestamp: int64(i * 1000),
		})
		require.NoError(t, err)
	}

	snapshot := preBuffer.Snapshot(ctx, wardID)
	require.Len(t, snapshot.SensorSamples, 60)

	// 最旧的应该是第 11 条（1-10 被挤出），且保持时间正序
	assert.Equal(t, int64(11000), snapshot.SensorSamples[0].Timestamp)
	assert.Equal(t, int64(70000), snapshot.SensorSamples[59].Timestamp)
	for i := 1; i < 60; i++ {
		assert.Greater(t, snapshot.SensorSamples[i].Timestamp, snapshot.SensorSamples[i-1].Timestamp)
	}
}

func TestPreIncidentBuffer_Expiry(t *testing.T) {
	mr, preBuffer := setupTestBuffer(t)

	ctx := context.Background()
	wardID := "ward-123"

	err := preBuffer.AppendLocation(ctx, wardID, models.LocationSample{
		Latitude:  59.0,
		Longitude: 18.0,
		Timestamp: 1000,
	})
	require.NoError(t, err)

	// 模拟 10 分钟无活动，整键过期
	mr.FastForward(11 * time.Minute)

	snapshot := preBuffer.Snapshot(ctx, wardID)
	require.NotNil(t, snapshot)
	assert.Empty(t, snapshot.LocationSamples)
	assert.Empty(t, snapshot.SensorSamples)
}

func TestPreIncidentBuffer_AppendRefreshesTTL(t *testing.T) {
	mr, preBuffer := setupTestBuffer(t)

	ctx := context.Background()
	wardID := "ward-123"

	err := preBuffer.AppendLocation(ctx, wardID, models.LocationSample{Latitude: 1, Longitude: 1, Timestamp: 1000})
	require.NoError(t, err)

	// 8 分钟后再次追加，TTL 应被刷新
	mr.FastForward(8 * time.Minute)
	err = preBuffer.AppendLocation(ctx, wardID, models.LocationSample{Latitude: 2, Longitude: 2, Timestamp: 2000})
	require.NoError(t, err)

	// 又过 8 分钟（距第一条 16 分钟，距第二条 8 分钟）：键仍然存活
	mr.FastForward(8 * time.Minute)
	snapshot := preBuffer.Snapshot(ctx, wardID)
	assert.Len(t, snapshot.LocationSamples, 2)
}

func TestPreIncidentBuffer_Clear(t *testing.T) {
	_, preBuffer := setupTestBuffer(t)

	ctx := context.Background()
	wardID := "ward-123"

	require.NoError(t, preBuffer.AppendLocation(ctx, wardID, models.LocationSample{Latitude: 1, Longitude: 1, Timestamp: 1000}))
	require.NoError(t, preBuffer.AppendSensor(ctx, wardID, models.SensorSample{AccelX: 1, Timestamp: 1000}))

	err := preBuffer.Clear(ctx, wardID)
	require.NoError(t, err)

	snapshot := preBuffer.Snapshot(ctx, wardID)
	assert.Empty(t, snapshot.LocationSamples)
	assert.Empty(t, snapshot.SensorSamples)
}

func TestPreIncidentBuffer_SnapshotNeverFails(t *testing.T) {
	mr, preBuffer := setupTestBuffer(t)

	ctx := context.Background()

	// 存储不可用：快照降级为空，不报错
	mr.Close()

	snapshot := preBuffer.Snapshot(ctx, "ward-123")
	require.NotNil(t, snapshot)
	assert.Empty(t, snapshot.LocationSamples)
	assert.Empty(t, snapshot.SensorSamples)
	assert.False(t, snapshot.RetrievedAt.IsZero())
}

func TestPreIncidentBuffer_EmptyWardID(t *testing.T) {
	_, preBuffer := setupTestBuffer(t)

	ctx := context.Background()

	err := preBuffer.AppendLocation(ctx, "", models.LocationSample{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ward_id is required")

	err = preBuffer.Clear(ctx, "")
	assert.Error(t, err)

	// 快照对空 ward_id 仍返回空快照
	snapshot := preBuffer.Snapshot(ctx, "")
	require.NotNil(t, snapshot)
	assert.Empty(t, snapshot.LocationSamples)
}
