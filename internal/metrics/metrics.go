// Package metrics prometheus collectors exported on the private listener
// Package metrics 在私有端口导出的 prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notegpt"

var (
	// WSConnections 当前在线的同步连接数
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Number of registered sync connections.",
	})

	// WSMessages 按类型统计的入站消息数
	WSMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_messages_total",
		Help:      "Inbound sync messages by type.",
	}, []string{"type"})

	// WSBroadcasts 按类型统计的广播次数
	WSBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_broadcasts_total",
		Help:      "Broadcast fan-outs by message type.",
	}, []string{"type"})

	// LWWRejected 被最后写入者胜出规则拒绝的写入
	LWWRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lww_rejected_total",
		Help:      "Upserts rejected because the stored entity was not older.",
	}, []string{"kind"})

	// StorageFailures 存储失败次数
	StorageFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_failures_total",
		Help:      "Entity store operations that failed.",
	})

	// GenerateRequests 生成请求数
	GenerateRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generate_requests_total",
		Help:      "Text generation requests by provider and result.",
	}, []string{"provider", "result"})

	// RateLimited 被限流拒绝的请求数
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by route.",
	}, []string{"route"})
)
