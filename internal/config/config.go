package config

import (
	"os"
	"strconv"

	"wardlink-alert/pkg/database"
	"wardlink-alert/pkg/mqtt"
	"wardlink-alert/pkg/redis"
)

// Config 报警派发服务配置
type Config struct {
	Database database.Options
	Redis    redis.Options
	MQTT     mqtt.Options

	// 报警派发特定配置
	Alert struct {
		// 监护人控制台链接（兜底消息和短信中附带的深度链接基础地址）
		DashboardBaseURL string

		// 预事件缓冲区配置
		Buffer struct {
			KeyPrefix      string // 缓冲区键前缀，如 "wardlink:ward:"
			LocationSuffix string // 位置样本列表后缀，如 ":location"
			SensorSuffix   string // 传感器样本列表后缀，如 ":sensor"
			MaxSamples     int    // 每个列表保留的最大样本数，默认 60
			TTLSeconds     int    // 整个键的过期时间（秒），默认 600
		}

		// 重复报警抑制窗口（分钟），0 表示关闭
		DedupWindowMinutes int

		// 派发队列长度（fire-and-forget 后台队列）
		QueueSize int

		// 运行时配置缓存刷新间隔（秒）
		SettingsTTLSeconds int
	}

	// SMS 服务商配置（缺失时 SMS 渠道不可用，自动回退到 console）
	SMS struct {
		BaseURL    string
		AccountID  string
		AuthToken  string
		FromNumber string
	}

	// 邮件服务商配置（缺失时邮件通知静默降级）
	Email struct {
		BaseURL     string
		APIKey      string
		FromAddress string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "wardlink")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wardlink-alert")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 报警派发配置
	cfg.Alert.DashboardBaseURL = getEnv("DASHBOARD_BASE_URL", "https://app.wardlink.io/dashboard")
	cfg.Alert.Buffer.KeyPrefix = getEnv("BUFFER_KEY_PREFIX", "wardlink:ward:")
	cfg.Alert.Buffer.LocationSuffix = ":location"
	cfg.Alert.Buffer.SensorSuffix = ":sensor"
	cfg.Alert.Buffer.MaxSamples = getEnvInt("BUFFER_MAX_SAMPLES", 60)
	cfg.Alert.Buffer.TTLSeconds = getEnvInt("BUFFER_TTL_SECONDS", 600)
	cfg.Alert.DedupWindowMinutes = getEnvInt("ALERT_DEDUP_WINDOW_MINUTES", 5)
	cfg.Alert.QueueSize = getEnvInt("ALERT_QUEUE_SIZE", 256)
	cfg.Alert.SettingsTTLSeconds = getEnvInt("SETTINGS_TTL_SECONDS", 60)

	// SMS 服务商
	cfg.SMS.BaseURL = getEnv("SMS_API_BASE_URL", "")
	cfg.SMS.AccountID = getEnv("SMS_ACCOUNT_ID", "")
	cfg.SMS.AuthToken = getEnv("SMS_AUTH_TOKEN", "")
	cfg.SMS.FromNumber = getEnv("SMS_FROM_NUMBER", "")

	// 邮件服务商
	cfg.Email.BaseURL = getEnv("EMAIL_API_BASE_URL", "")
	cfg.Email.APIKey = getEnv("EMAIL_API_KEY", "")
	cfg.Email.FromAddress = getEnv("EMAIL_FROM_ADDRESS", "alerts@wardlink.io")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// SMSConfigured SMS 渠道是否已配置
func (c *Config) SMSConfigured() bool {
	return c.SMS.BaseURL != "" && c.SMS.AccountID != "" && c.SMS.FromNumber != ""
}

// EmailConfigured 邮件渠道是否已配置
func (c *Config) EmailConfigured() bool {
	return c.Email.BaseURL != "" && c.Email.APIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
