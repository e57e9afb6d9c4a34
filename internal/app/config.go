// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/dao"
	"github.com/haierkeys/notegpt-sync-service/internal/service"
	"github.com/haierkeys/notegpt-sync-service/pkg/limiter"
	"github.com/haierkeys/notegpt-sync-service/pkg/llm"
	"github.com/haierkeys/notegpt-sync-service/pkg/logger"
	"github.com/haierkeys/notegpt-sync-service/pkg/storage"
	"github.com/haierkeys/notegpt-sync-service/pkg/util"
	"github.com/haierkeys/notegpt-sync-service/pkg/workerpool"
	"github.com/haierkeys/notegpt-sync-service/pkg/writequeue"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AppConfig 应用配置
type AppConfig struct {
	File      string          `yaml:"-"` // 配置文件路径，不序列化
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Security  SecurityConfig  `yaml:"security"`
	Sync      SyncConfig      `yaml:"sync"`
	Generate  GenerateConfig  `yaml:"generate"`
	Backup    BackupConfig    `yaml:"backup"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	App       AppSettings     `yaml:"app"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别，参见 zapcore.ParseLevel
	Level string `yaml:"level" default:"info"`
	// File 日志文件路径
	File string `yaml:"file" default:"storage/logs/log.log"`
	// Production 是否启用 JSON 输出
	Production bool `yaml:"production" default:"true"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// RunMode 运行模式 debug / release
	RunMode string `yaml:"run-mode" default:"release"`
	// HttpPort HTTP 端口
	HttpPort string `yaml:"http-port" default:":8080"`
	// ReadTimeout 读取超时（秒）
	ReadTimeout int `yaml:"read-timeout" default:"60"`
	// WriteTimeout write timeout in seconds; 0 leaves SSE streams unbounded
	// WriteTimeout 写入超时（秒），0 表示不限制（SSE 长连接）
	WriteTimeout int `yaml:"write-timeout" default:"0"`
	// PrivateHttpListen 私有 HTTP 监听地址（metrics / pprof），为空时不启动
	PrivateHttpListen string `yaml:"private-http-listen" default:"127.0.0.1:8081"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	// SyncToken required ?token= on /v1/sync; empty disables the check
	// SyncToken /v1/sync 需要的 token 参数，为空时不校验
	SyncToken string `yaml:"sync-token"`
	// APIToken required x-api-key on /v1/generate and /v1/snapshot
	// APIToken /v1/generate 与 /v1/snapshot 需要的 x-api-key
	APIToken string `yaml:"api-token"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Type 数据库类型 sqlite / mysql / postgres
	Type string `yaml:"type" default:"sqlite"`
	// Path SQLite 数据库文件路径
	Path string `yaml:"path" default:"storage/database/notes.sqlite3"`
	// UserName 用户名
	UserName string `yaml:"username"`
	// Password 密码
	Password string `yaml:"password"`
	// Host 主机
	Host string `yaml:"host"`
	// Name 数据库名
	Name string `yaml:"name"`
	// TablePrefix 表前缀
	TablePrefix string `yaml:"table-prefix"`
	// AutoMigrate 是否启用自动迁移
	AutoMigrate bool `yaml:"auto-migrate" default:"true"`
	// Charset 字符集
	Charset string `yaml:"charset"`
	// ParseTime 是否解析时间
	ParseTime bool `yaml:"parse-time"`
	// MaxIdleConns 最大闲置连接数
	MaxIdleConns int `yaml:"max-idle-conns" default:"10"`
	// MaxOpenConns 最大打开连接数
	MaxOpenConns int `yaml:"max-open-conns" default:"100"`
	// ConnMaxLifetime 连接最大生命周期，支持格式：30m（分钟）、1h（小时）
	ConnMaxLifetime string `yaml:"conn-max-lifetime" default:"30m"`
	// ConnMaxIdleTime 空闲连接最大生命周期
	ConnMaxIdleTime string `yaml:"conn-max-idle-time" default:"10m"`
}

// SyncConfig 实时同步配置
type SyncConfig struct {
	// HeartbeatInterval how often idle connections are swept
	// HeartbeatInterval 心跳检查间隔
	HeartbeatInterval string `yaml:"heartbeat-interval" default:"30s"`
	// HeartbeatTimeout silence after which a connection is closed with 4000
	// HeartbeatTimeout 连接静默超过该时长后以 4000 关闭
	HeartbeatTimeout string `yaml:"heartbeat-timeout" default:"60s"`
	// RejectStaleDelete 忽略早于已存储 updatedAt 的删除
	RejectStaleDelete bool `yaml:"reject-stale-delete" default:"false"`
	// MaxMessageSize 单条消息最大字节数
	MaxMessageSize int `yaml:"max-message-size" default:"4194304"`
	// CheckpointSchedule cron spec for the sqlite WAL checkpoint
	// CheckpointSchedule SQLite WAL 检查点的 cron 表达式
	CheckpointSchedule string `yaml:"checkpoint-schedule" default:"@every 10m"`
	// PruneSchedule cron spec for the orphan relation sweep
	// PruneSchedule 孤立关联清理的 cron 表达式
	PruneSchedule string `yaml:"prune-schedule" default:"@every 1h"`
}

// GenerateConfig AI 生成代理配置
type GenerateConfig struct {
	Provider      string `yaml:"provider" default:"openai"`
	OpenAIAPIKey  string `yaml:"openai-api-key"`
	OpenAIBaseURL string `yaml:"openai-base-url" default:"https://api.openai.com"`
	OpenAIModel   string `yaml:"openai-model" default:"gpt-4o-mini"`
	GeminiAPIKey  string `yaml:"gemini-api-key"`
	GeminiModel   string `yaml:"gemini-model" default:"gemini-2.0-flash"`
	MaxInput      int    `yaml:"max-input" default:"20000"`
	SegmentSize   int    `yaml:"segment-size" default:"1000"`
	// Timeout 单次生成的最长时间
	Timeout string `yaml:"timeout" default:"5m"`
	// MockDelay mock 生成的片段间隔
	MockDelay string `yaml:"mock-delay" default:"50ms"`
}

// BackupConfig 快照备份配置
type BackupConfig struct {
	Enabled bool `yaml:"enabled" default:"false"`
	// Schedule cron spec of the backup task
	// Schedule 备份任务的 cron 表达式
	Schedule string `yaml:"schedule" default:"@daily"`
	// Retention newest backups kept at the target, 0 keeps all
	// Retention 目标端保留的最新备份数，0 表示全部保留
	Retention int `yaml:"retention" default:"7"`
	// Storage 备份目标
	Storage storage.Config `yaml:"storage"`
}

// RateLimitConfig /v1/generate 限流配置
type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Window  string `yaml:"window" default:"60s"`
	Max     int64  `yaml:"max" default:"10"`
}

// AppSettings 应用设置
type AppSettings struct {
	// DefaultContextTimeout 普通 HTTP 请求的上下文超时（秒）
	DefaultContextTimeout int `yaml:"default-context-timeout" default:"60"`

	// Worker Pool 配置
	WorkerPoolMaxWorkers int `yaml:"worker-pool-max-workers" default:"32"`
	WorkerPoolQueueSize  int `yaml:"worker-pool-queue-size" default:"256"`

	// Write Queue 配置
	WriteQueueCapacity int    `yaml:"write-queue-capacity" default:"100"`
	WriteQueueTimeout  string `yaml:"write-queue-timeout" default:"30s"`
	WriteQueueIdleTime string `yaml:"write-queue-idle-time" default:"10m"`
}

// TracerConfig 请求追踪配置
type TracerConfig struct {
	// Enabled 是否启用追踪
	Enabled bool `yaml:"enabled" default:"true"`
	// Header 追踪 ID 请求头名称，默认 X-Trace-ID
	Header string `yaml:"header" default:"X-Trace-ID"`
}

// LoadConfig 从文件加载配置
// 返回配置实例和配置文件的绝对路径
func LoadConfig(f string) (*AppConfig, string, error) {
	realpath, err := filepath.Abs(f)
	if err != nil {
		return nil, "", err
	}
	realpath = filepath.Clean(realpath)

	c := new(AppConfig)
	c.File = realpath

	// 设置默认值
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "set default config failed")
	}

	file, err := os.ReadFile(realpath)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "read config file failed")
	}

	// absent and null keys keep their defaults; an explicit false stays false
	// 缺失或为空的键保留默认值，显式的 false 不会被默认值覆盖
	if err = yaml.Unmarshal(file, c); err != nil {
		return nil, realpath, errors.Wrap(err, "parse config file failed")
	}

	c.applyEnv(os.LookupEnv)

	return c, realpath, nil
}

// applyEnv lets the environment override secrets and limits
// applyEnv 使用环境变量覆盖密钥与限流配置
func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SERVER_API_TOKEN", &c.Security.APIToken)
	str("SYNC_TOKEN", &c.Security.SyncToken)
	str("OPENAI_API_KEY", &c.Generate.OpenAIAPIKey)
	str("OPENAI_BASE_URL", &c.Generate.OpenAIBaseURL)
	str("OPENAI_MODEL", &c.Generate.OpenAIModel)
	str("GEMINI_API_KEY", &c.Generate.GeminiAPIKey)
	str("BACKUP_ACCESS_KEY_ID", &c.Backup.Storage.AccessKeyID)
	str("BACKUP_ACCESS_KEY_SECRET", &c.Backup.Storage.AccessKeySecret)
	str("BACKUP_PASSWORD", &c.Backup.Storage.Password)

	if v, ok := lookup("RATE_LIMIT_WINDOW_MS"); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			c.RateLimit.Window = strconv.FormatInt(ms, 10) + "ms"
		}
	}
	if v, ok := lookup("RATE_LIMIT_MAX"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.RateLimit.Max = n
		}
	}
}

// Save 保存配置到文件
func (c *AppConfig) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config failed")
	}

	if err = os.WriteFile(c.File, data, 0644); err != nil {
		return errors.Wrap(err, "write config file failed")
	}

	return nil
}

func duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := util.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}

// GetLoggerConfig 获取日志配置
func (c *AppConfig) GetLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		Production: c.Log.Production,
	}
}

// GetDatabaseConfig 转换为 dao.DatabaseConfig
func (c *AppConfig) GetDatabaseConfig() dao.DatabaseConfig {
	return dao.DatabaseConfig{
		Type:            c.Database.Type,
		Path:            c.Database.Path,
		UserName:        c.Database.UserName,
		Password:        c.Database.Password,
		Host:            c.Database.Host,
		Name:            c.Database.Name,
		TablePrefix:     c.Database.TablePrefix,
		AutoMigrate:     c.Database.AutoMigrate,
		Charset:         c.Database.Charset,
		ParseTime:       c.Database.ParseTime,
		MaxIdleConns:    c.Database.MaxIdleConns,
		MaxOpenConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
		RunMode:         c.Server.RunMode,
	}
}

// GetWorkerPoolConfig 获取 Worker Pool 配置
func (c *AppConfig) GetWorkerPoolConfig() workerpool.Config {
	cfg := workerpool.DefaultConfig()

	if c.App.WorkerPoolMaxWorkers > 0 {
		cfg.MaxWorkers = c.App.WorkerPoolMaxWorkers
	}
	if c.App.WorkerPoolQueueSize > 0 {
		cfg.QueueSize = c.App.WorkerPoolQueueSize
	}

	return cfg
}

// GetWriteQueueConfig 获取 Write Queue 配置
func (c *AppConfig) GetWriteQueueConfig() writequeue.Config {
	cfg := writequeue.DefaultConfig()

	if c.App.WriteQueueCapacity > 0 {
		cfg.QueueCapacity = c.App.WriteQueueCapacity
	}
	cfg.WriteTimeout = duration(c.App.WriteQueueTimeout, cfg.WriteTimeout)
	cfg.IdleTimeout = duration(c.App.WriteQueueIdleTime, cfg.IdleTimeout)

	return cfg
}

// GetServiceConfig 提取 Service 层需要的配置
func (c *AppConfig) GetServiceConfig() *service.ServiceConfig {
	return &service.ServiceConfig{
		Sync: service.SyncServiceConfig{
			RejectStaleDelete: c.Sync.RejectStaleDelete,
		},
		Generate: service.GenerateServiceConfig{
			DefaultProvider: c.Generate.Provider,
			MaxInput:        c.Generate.MaxInput,
			SegmentSize:     c.Generate.SegmentSize,
			Timeout:         duration(c.Generate.Timeout, 5*time.Minute),
		},
		Backup: service.BackupServiceConfig{
			Retention: c.Backup.Retention,
		},
	}
}

// GetLLMConfig 获取生成服务配置
func (c *AppConfig) GetLLMConfig() llm.Config {
	return llm.Config{
		OpenAIAPIKey:  c.Generate.OpenAIAPIKey,
		OpenAIBaseURL: c.Generate.OpenAIBaseURL,
		OpenAIModel:   c.Generate.OpenAIModel,
		GeminiAPIKey:  c.Generate.GeminiAPIKey,
		GeminiModel:   c.Generate.GeminiModel,
		SegmentSize:   c.Generate.SegmentSize,
		MockDelay:     duration(c.Generate.MockDelay, 0),
	}
}

// GetRateLimitRule 获取限流规则
func (c *AppConfig) GetRateLimitRule() limiter.BucketRule {
	return limiter.BucketRule{
		Window: duration(c.RateLimit.Window, time.Minute),
		Max:    c.RateLimit.Max,
	}
}

// GetHeartbeatInterval 心跳检查间隔
func (c *AppConfig) GetHeartbeatInterval() time.Duration {
	return duration(c.Sync.HeartbeatInterval, 30*time.Second)
}

// GetHeartbeatTimeout 心跳超时时间
func (c *AppConfig) GetHeartbeatTimeout() time.Duration {
	return duration(c.Sync.HeartbeatTimeout, 60*time.Second)
}
