// Package dao 实现数据访问层
package dao

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/haierkeys/notegpt-sync-service/pkg/writequeue"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// writeKey every write shares one queue key: the embedded engine has a single writer
// writeKey 所有写操作共用一个队列 key：嵌入式引擎只允许单写者
const writeKey = "entity-store"

// DatabaseConfig database connection configuration
// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	Type            string
	Path            string
	UserName        string
	Password        string
	Host            string
	Name            string
	TablePrefix     string
	AutoMigrate     bool
	Charset         string
	ParseTime       bool
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime string
	ConnMaxIdleTime string
	RunMode         string
}

// Dao data access object shared by repositories
// Dao 各仓储共享的数据访问对象
type Dao struct {
	Db     *gorm.DB
	ctx    context.Context
	config *DatabaseConfig
	logger *zap.Logger
	wq     *writequeue.Manager
}

// Option Dao 配置项
type Option func(*Dao)

// WithConfig 注入数据库配置
func WithConfig(c *DatabaseConfig) Option {
	return func(d *Dao) { d.config = c }
}

// WithLogger 注入日志器
func WithLogger(l *zap.Logger) Option {
	return func(d *Dao) { d.logger = l }
}

// WithWriteQueueManager serializes writes through the given manager
// WithWriteQueueManager 通过指定管理器串行化写操作
func WithWriteQueueManager(m *writequeue.Manager) Option {
	return func(d *Dao) { d.wq = m }
}

// New creates Dao
// New 创建 Dao
func New(db *gorm.DB, ctx context.Context, opts ...Option) *Dao {
	d := &Dao{Db: db, ctx: ctx}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.config == nil {
		d.config = &DatabaseConfig{Type: db.Dialector.Name()}
	}
	return d
}

// DB 返回带 context 的数据库会话
func (d *Dao) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		ctx = d.ctx
	}
	return d.Db.WithContext(ctx)
}

// ExecuteWrite runs fn through the write queue when one is configured
// ExecuteWrite 配置了写队列时经由写队列执行 fn
func (d *Dao) ExecuteWrite(ctx context.Context, fn func() error) error {
	if d.wq == nil {
		return fn()
	}
	return d.wq.Execute(ctx, writeKey, fn)
}

// IsSQLite 是否为 SQLite 引擎
func (d *Dao) IsSQLite() bool {
	return d.Db.Dialector.Name() == "sqlite"
}

// tableName resolves the physical table of a model, honouring the table prefix
// tableName 解析模型对应的物理表名（包含表前缀）
func (d *Dao) tableName(m any) string {
	stmt := &gorm.Statement{DB: d.Db}
	if err := stmt.Parse(m); err != nil {
		d.logger.Error("dao parse model failed", zap.Error(err))
		return ""
	}
	return stmt.Schema.Table
}

// NewDBEngineWithConfig opens the configured engine and applies pool settings
// NewDBEngineWithConfig 打开配置的数据库引擎并设置连接池
func NewDBEngineWithConfig(c DatabaseConfig, lg *zap.Logger) (*gorm.DB, error) {
	dialector, err := useDialector(c)
	if err != nil {
		return nil, err
	}

	logMode := logger.Silent
	if c.RunMode == "debug" {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: c.TablePrefix,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database failed")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB failed")
	}

	if c.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	}
	if d, err := time.ParseDuration(c.ConnMaxLifetime); err == nil {
		sqlDB.SetConnMaxLifetime(d)
	}
	if d, err := time.ParseDuration(c.ConnMaxIdleTime); err == nil {
		sqlDB.SetConnMaxIdleTime(d)
	}

	if lg != nil {
		lg.Info("database connected", zap.String("type", c.Type), zap.String("path", c.Path), zap.String("host", c.Host))
	}

	return db, nil
}

func useDialector(c DatabaseConfig) (gorm.Dialector, error) {
	switch c.Type {
	case "mysql":
		charset := c.Charset
		if charset == "" {
			charset = "utf8mb4"
		}
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=%s&parseTime=%t&loc=UTC",
			c.UserName,
			c.Password,
			c.Host,
			c.Name,
			charset,
			c.ParseTime,
		)), nil
	case "postgres":
		host, port, err := net.SplitHostPort(c.Host)
		if err != nil {
			host, port = c.Host, "5432"
		}
		return postgres.Open(fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			host, port, c.UserName, c.Password, c.Name)), nil
	case "sqlite", "":
		if dir := filepath.Dir(c.Path); dir != "" {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, errors.Wrap(err, "create sqlite directory failed")
			}
		}
		return sqlite.Open(c.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"), nil
	}
	return nil, errors.Errorf("unsupported database type: %s", c.Type)
}
