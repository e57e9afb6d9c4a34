package task

import (
	"context"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/limiter"

	"go.uber.org/zap"
)

func init() {
	Register(NewLimiterPruneTask)
}

// LimiterPruneTask drops rate limit buckets idle for longer than idle
// LimiterPruneTask 清理长时间未使用的限流桶
type LimiterPruneTask struct {
	limiter *limiter.KeyLimiter
	idle    time.Duration
	logger  *zap.Logger
}

func (t *LimiterPruneTask) Name() string       { return "LimiterPrune" }
func (t *LimiterPruneTask) Schedule() string   { return "@every 5m" }
func (t *LimiterPruneTask) IsStartupRun() bool { return false }

func (t *LimiterPruneTask) Run(context.Context) error {
	if n := t.limiter.Prune(t.idle); n > 0 {
		t.logger.Debug("rate limit buckets pruned", zap.Int("count", n), zap.Int("remaining", t.limiter.Len()))
	}
	return nil
}

// NewLimiterPruneTask 限流关闭时不启用
func NewLimiterPruneTask(a *app.App) (Task, error) {
	if !a.Config().RateLimit.Enabled || a.Limiter == nil {
		return nil, nil
	}
	idle := a.Config().GetRateLimitRule().Window
	if idle < time.Minute {
		idle = time.Minute
	}
	return &LimiterPruneTask{limiter: a.Limiter, idle: 2 * idle, logger: a.Logger()}, nil
}
