package logger

// 统一的日志字段命名常量
// 用于确保整个项目中日志字段命名的一致性，便于日志查询和分析
const (
	// FieldTraceID 追踪 ID 字段
	FieldTraceID = "traceId"

	// FieldClientID 连接 ID 字段
	FieldClientID = "clientId"

	// FieldAction 操作类型字段
	FieldAction = "action"

	// FieldKind 实体类型字段
	FieldKind = "kind"

	// FieldEntityID 实体 ID 字段
	FieldEntityID = "entityId"

	// FieldRelation 关联名称字段
	FieldRelation = "relation"

	// FieldDuration 耗时字段
	FieldDuration = "duration"

	// FieldMethod 方法名称字段
	FieldMethod = "method"

	// FieldError 错误信息字段
	FieldError = "error"

	// FieldCount 数量字段
	FieldCount = "count"

	// FieldProvider 生成服务字段
	FieldProvider = "provider"

	// FieldChunks 分块数量字段
	FieldChunks = "chunks"
)
