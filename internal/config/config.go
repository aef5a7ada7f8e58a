package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Mongo    MongoConfig    `json:"mongo"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env               string        `json:"env"`                 // 运行环境: local / prod
	LogLevel          string        `json:"log_level"`           // 日志级别: debug / info / warn / error
	HTTPAddr          string        `json:"http_addr"`           // API 服务监听地址
	SessionTTL        time.Duration `json:"session_ttl"`         // 会话令牌有效期（如 "24h"）
	ForgotTokenTTL    int           `json:"forgot_token_ttl"`    // 找回密码令牌有效期（秒）
	StatsRule         string        `json:"stats_rule"`          // 统计任务的 cron 表达式
	MailQueueWorkers  int           `json:"mail_queue_workers"`  // 邮件发送 worker 数
	MailQueueCapacity int           `json:"mail_queue_capacity"` // 邮件队列容量
}

// MongoConfig MongoDB 数据库配置。
type MongoConfig struct {
	URI      string `json:"uri"`      // 连接字符串
	Database string `json:"database"` // 数据库名
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port"`
	SMTPUser    string `json:"smtp_user"`
	SMTPPass    string `json:"smtp_pass"`
	FromEmail   string `json:"from_email"`
	Enabled     bool   `json:"enabled"`      // 为 false 时只记录日志不真正发信
	FrontendURL string `json:"frontend_url"` // 邮件里链接指向的前端地址
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"` // 会话令牌签名密钥
}

// Load 从 JSON 文件加载配置。
//
// 配置文件不存在时使用默认值；环境变量始终优先覆盖文件内容。
//
// 参数:
//
//	configPath: 配置文件路径（为空则使用默认路径 "configs/config.json"）
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:               "local",
			LogLevel:          "info",
			HTTPAddr:          ":3000",
			SessionTTL:        24 * time.Hour,
			ForgotTokenTTL:    900, // 15 分钟
			StatsRule:         "0 * * * *",
			MailQueueWorkers:  4,
			MailQueueCapacity: 64,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "st_backend",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:    "sandbox.smtp.mailtrap.io",
			SMTPPort:    2525,
			SMTPUser:    "",
			SMTPPass:    "",
			FromEmail:   "admin@localhost.com",
			Enabled:     false,
			FrontendURL: "http://localhost:8080",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.SessionTTL == 0 {
		cfg.App.SessionTTL = defaults.App.SessionTTL
	}
	if cfg.App.ForgotTokenTTL == 0 {
		cfg.App.ForgotTokenTTL = defaults.App.ForgotTokenTTL
	}
	if cfg.App.StatsRule == "" {
		cfg.App.StatsRule = defaults.App.StatsRule
	}
	if cfg.App.MailQueueWorkers == 0 {
		cfg.App.MailQueueWorkers = defaults.App.MailQueueWorkers
	}
	if cfg.App.MailQueueCapacity == 0 {
		cfg.App.MailQueueCapacity = defaults.App.MailQueueCapacity
	}
	if cfg.Mongo.URI == "" {
		cfg.Mongo.URI = defaults.Mongo.URI
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = defaults.Mongo.Database
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPHost == "" {
		cfg.Email.SMTPHost = defaults.Email.SMTPHost
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Email.FromEmail == "" {
		cfg.Email.FromEmail = defaults.Email.FromEmail
	}
	if cfg.Email.FrontendURL == "" {
		cfg.Email.FrontendURL = defaults.Email.FrontendURL
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("mongo_uri", "MONGO_URI")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "EMAIL_AUTH_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.App.HTTPAddr = ":" + v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SessionTTL = d
		}
	}
	if v := os.Getenv("EXPIRE_FORGOT_TOKEN"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.ForgotTokenTTL = i
		}
	}
	if v := os.Getenv("STATS_RULE"); v != "" {
		cfg.App.StatsRule = v
	}
	if v := os.Getenv("APP_MAIL_QUEUE_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.MailQueueWorkers = i
		}
	}
	if v := os.Getenv("APP_MAIL_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.MailQueueCapacity = i
		}
	}

	if v := viper.GetString("mongo_uri"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_DB"); v != "" {
		cfg.Mongo.Database = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("EMAIL_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("EMAIL_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("EMAIL_AUTH_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Email.FrontendURL = v
	}
	if v := os.Getenv("SENDMAIL"); v != "" {
		cfg.Email.Enabled = v == "yes" || v == "true" || v == "1"
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		SessionTTL string `json:"session_ttl"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.SessionTTL != "" {
		duration, err := time.ParseDuration(aux.SessionTTL)
		if err != nil {
			return fmt.Errorf("invalid session_ttl format: %w", err)
		}
		a.SessionTTL = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		SessionTTL string `json:"session_ttl"`
		*Alias
	}{
		SessionTTL: a.SessionTTL.String(),
		Alias:      (*Alias)(&a),
	})
}
