package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wardlink-alert/internal/buffer"
	"wardlink-alert/internal/channel"
	"wardlink-alert/internal/config"
	"wardlink-alert/internal/consumer"
	"wardlink-alert/internal/dispatcher"
	"wardlink-alert/internal/repository"
	"wardlink-alert/internal/settings"
	"wardlink-alert/pkg/database"
	"wardlink-alert/pkg/mqtt"
	pkgredis "wardlink-alert/pkg/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AlertService 报警派发服务（整合各层）
type AlertService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	guardianRepo  *repository.GuardianRepository
	incidentRepo  *repository.IncidentRepository
	auditRepo     *repository.AuditRepository
	settingsRepo  *repository.SettingsRepository
	settingsCache *settings.Cache
	preBuffer     *buffer.PreIncidentBuffer
	dispatcher    *dispatcher.Dispatcher
	worker        *dispatcher.Worker
	consumer      *consumer.DeviceConsumer
}

// NewAlertService 创建报警派发服务
func NewAlertService(cfg *config.Config, logger *zap.Logger) (*AlertService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := pkgredis.NewRedisClient(&cfg.Redis)
	ctx := context.Background()
	if err := pkgredis.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("failed to connect MQTT broker: %w", err)
	}

	// 4. 创建 Repository 层
	guardianRepo := repository.NewGuardianRepository(db, logger)
	incidentRepo := repository.NewIncidentRepository(db, logger)
	auditRepo := repository.NewAuditRepository(db, logger)
	settingsRepo := repository.NewSettingsRepository(db, logger)

	// 5. 创建运行时配置缓存和预事件缓冲区
	settingsCache := settings.NewCache(
		settingsRepo,
		time.Duration(cfg.Alert.SettingsTTLSeconds)*time.Second,
		logger,
	)
	preBuffer := buffer.NewPreIncidentBuffer(cfg, redisClient, logger)

	// 6. 创建投递渠道
	smsChannel := channel.NewSMSChannel(
		cfg.SMS.BaseURL,
		cfg.SMS.AccountID,
		cfg.SMS.AuthToken,
		cfg.SMS.FromNumber,
		logger,
	)
	consoleChannel := channel.NewConsoleChannel(logger)
	emailChannel := channel.NewEmailChannel(
		cfg.Email.BaseURL,
		cfg.Email.APIKey,
		cfg.Email.FromAddress,
		logger,
	)

	// 7. 创建派发器
	builder := dispatcher.NewContextBuilder(guardianRepo, cfg.Alert.DashboardBaseURL, logger)
	disp := dispatcher.NewDispatcher(
		guardianRepo,
		builder,
		smsChannel,
		consoleChannel,
		emailChannel,
		auditRepo,
		incidentRepo,
		logger,
	)

	// 8. 创建后台工作器和设备消费者
	worker := dispatcher.NewWorker(cfg.Alert.QueueSize, logger)
	deviceConsumer := consumer.NewDeviceConsumer(
		cfg,
		mqttClient,
		preBuffer,
		incidentRepo,
		disp,
		worker,
		settingsCache,
		logger,
	)

	return &AlertService{
		config:        cfg,
		db:            db,
		redisClient:   redisClient,
		mqttClient:    mqttClient,
		logger:        logger,
		guardianRepo:  guardianRepo,
		incidentRepo:  incidentRepo,
		auditRepo:     auditRepo,
		settingsRepo:  settingsRepo,
		settingsCache: settingsCache,
		preBuffer:     preBuffer,
		dispatcher:    disp,
		worker:        worker,
		consumer:      deviceConsumer,
	}, nil
}

// Dispatcher 暴露派发器（供进程内协作方调用，如 HTTP 层）
func (s *AlertService) Dispatcher() *dispatcher.Dispatcher {
	return s.dispatcher
}

// Buffer 暴露预事件缓冲区
func (s *AlertService) Buffer() *buffer.PreIncidentBuffer {
	return s.preBuffer
}

// Start 启动服务
func (s *AlertService) Start(ctx context.Context) error {
	s.logger.Info("Starting alert service")

	// 后台派发工作器
	go s.worker.Start(ctx)

	// 设备消费者（阻塞直到上下文取消）
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start device consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *AlertService) Stop() error {
	s.logger.Info("Stopping alert service")

	s.consumer.Stop()
	s.mqttClient.Disconnect()

	// 关闭数据库连接
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	// 关闭 Redis 连接
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}
