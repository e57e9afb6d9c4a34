// Package service implements the business logic layer
// Package service 实现业务逻辑层
package service

import "time"

// ServiceConfig service layer configuration
// ServiceConfig 服务层配置
type ServiceConfig struct {
	Sync     SyncServiceConfig     // Sync related config // 同步相关配置
	Generate GenerateServiceConfig // Generation proxy config // 生成代理配置
	Backup   BackupServiceConfig   // Snapshot backup config // 快照备份配置
}

// SyncServiceConfig sync service configuration
// SyncServiceConfig 同步服务配置
type SyncServiceConfig struct {
	// RejectStaleDelete skip deletes whose intent predates the stored updatedAt
	// RejectStaleDelete 跳过意图时间早于已存储 updatedAt 的删除
	RejectStaleDelete bool
}

// GenerateServiceConfig generation proxy configuration
// GenerateServiceConfig 生成代理配置
type GenerateServiceConfig struct {
	DefaultProvider string        // Provider used when the request names none // 请求未指定时使用的生成服务
	MaxInput        int           // Max input length in characters // 输入最大字符数
	SegmentSize     int           // Segment length // 分段长度
	Timeout         time.Duration // Upper bound of one generation // 单次生成的最长时间
}

// BackupServiceConfig 快照备份配置
type BackupServiceConfig struct {
	Retention int // Newest backups kept, 0 keeps all // 保留的最新备份数，0 表示全部保留
}
