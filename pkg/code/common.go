package code

import "net/http"

var (
	Success = NewSuss(1, lang{en: "Success", zh_cn: "成功"})

	ErrorServerInternal   = NewError(500, http.StatusInternalServerError, lang{en: "Server internal error", zh_cn: "服务器内部错误"})
	ErrorInvalidParams    = NewError(501, http.StatusBadRequest, lang{en: "Invalid parameters", zh_cn: "参数错误"})
	ErrorNotFound         = NewError(502, http.StatusNotFound, lang{en: "Resource not found", zh_cn: "资源不存在"})
	ErrorInvalidAuthToken = NewError(503, http.StatusUnauthorized, lang{en: "Unauthorized", zh_cn: "未授权，访问令牌无效"})
	ErrorTooManyRequests  = NewError(504, http.StatusTooManyRequests, lang{en: "Rate limit exceeded, please retry later", zh_cn: "请求过多，请稍后再试"})
	ErrorServerBusy       = NewError(505, http.StatusServiceUnavailable, lang{en: "Server is busy", zh_cn: "服务器繁忙"})

	ErrorStorageFailure = NewError(601, http.StatusInternalServerError, lang{en: "Storage failure", zh_cn: "存储失败"})
	ErrorRelationTarget = NewError(602, http.StatusBadRequest, lang{en: "Relation target does not exist", zh_cn: "关联的笔记或目标不存在"})
	ErrorUnknownKind    = NewError(603, http.StatusBadRequest, lang{en: "Unknown entity kind", zh_cn: "未知的实体类型"})

	ErrorGenerateFailed  = NewError(701, http.StatusBadGateway, lang{en: "Generation failed", zh_cn: "生成失败"})
	ErrorInputTooLong    = NewError(702, http.StatusBadRequest, lang{en: "Input is too long", zh_cn: "输入内容过长"})
	ErrorUnknownProvider = NewError(703, http.StatusBadRequest, lang{en: "Unknown generation provider", zh_cn: "未知的生成服务"})

	ErrorInvalidStorageType = NewError(801, http.StatusBadRequest, lang{en: "Invalid storage type", zh_cn: "无效的存储类型"})
	ErrorBackupDisabled     = NewError(802, http.StatusNotFound, lang{en: "Snapshot backup is disabled", zh_cn: "快照备份未启用"})
	ErrorBackupFailed       = NewError(803, http.StatusInternalServerError, lang{en: "Snapshot backup failed", zh_cn: "快照备份失败"})
)
