// Package config 负责加载和管理客户端网关的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Conf 是 Init 加载后的全局配置，仅供 main 使用；其余包通过参数接收配置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Session  SessionConfig  `mapstructure:"session"`
	Database DatabaseConfig `mapstructure:"database"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
}

// ServerConfig 存储本地 HTTP 服务相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// BackendConfig 描述远端 AI 后端的地址。
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SessionConfig 决定登录态持久化到哪里：memory 或 redis。
type SessionConfig struct {
	Store string `mapstructure:"store"`
}

// DatabaseConfig 存储持久化后端的配置。
type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ChatConfig 控制会话编排器的行为。
type ChatConfig struct {
	NearbyDelayMS      int  `mapstructure:"nearby_delay_ms"`
	LegacyOnlineSearch bool `mapstructure:"legacy_online_search"`
	VoiceEnabled       bool `mapstructure:"voice_enabled"`
}

// NearbyDelay 返回 "search nearby" 按钮出现前的延迟。
func (c ChatConfig) NearbyDelay() time.Duration {
	return time.Duration(c.NearbyDelayMS) * time.Millisecond
}

// CatalogConfig 存储商品目录与图片检索的参数。
type CatalogConfig struct {
	PageSize   int `mapstructure:"page_size"`
	RetrievalK int `mapstructure:"retrieval_k"`
}

// KafkaConfig 存储会话事件投递的配置，Brokers 为空表示关闭。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// Enabled 表示是否配置了 Kafka。
func (c KafkaConfig) Enabled() bool {
	return strings.TrimSpace(c.Brokers) != ""
}

// MinIOConfig 存储图片附件对象存储的配置，Endpoint 为空表示关闭。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	URLExpiryHours  int    `mapstructure:"url_expiry_hours"`
}

// Enabled 表示是否配置了 MinIO。
func (c MinIOConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("session.store", "memory")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("chat.nearby_delay_ms", 500)
	v.SetDefault("chat.legacy_online_search", false)
	v.SetDefault("chat.voice_enabled", true)
	v.SetDefault("catalog.page_size", 6)
	v.SetDefault("catalog.retrieval_k", 3)
	// 未设置默认值的键不会被 AutomaticEnv 覆盖，这里显式登记空值
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "fashion-user-sessions")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "chat-attachments")
	v.SetDefault("minio.url_expiry_hours", 24)
}

// Load 从指定 YAML 文件读取配置；FASHION_ 前缀的环境变量可覆盖任意键。
// configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FASHION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if cfg.Session.Store != "memory" && cfg.Session.Store != "redis" {
		return nil, fmt.Errorf("不支持的 session.store: %q", cfg.Session.Store)
	}
	if cfg.Catalog.PageSize < 1 {
		cfg.Catalog.PageSize = 6
	}
	if cfg.Catalog.RetrievalK < 1 {
		cfg.Catalog.RetrievalK = 3
	}
	return &cfg, nil
}

// Init 加载配置到 Conf，失败时直接 panic，供 main 使用。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
