package limiter

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLimiter_QuotaPerKey(t *testing.T) {
	l := NewKeyLimiter(BucketRule{Window: time.Hour, Max: 3}, nil)

	a, ok := l.GetBucket("a")
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		assert.Equal(t, int64(1), a.TakeAvailable(1))
	}
	assert.Equal(t, int64(0), a.TakeAvailable(1))

	b, _ := l.GetBucket("b")
	assert.Equal(t, int64(1), b.TakeAvailable(1))

	again, _ := l.GetBucket("a")
	assert.Same(t, a, again)
	assert.Equal(t, time.Hour, l.RetryAfter())
}

func TestKeyLimiter_Prune(t *testing.T) {
	l := NewKeyLimiter(BucketRule{}, nil)
	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }

	l.GetBucket("old")
	clock = clock.Add(10 * time.Minute)
	l.GetBucket("fresh")

	assert.Equal(t, 1, l.Prune(5*time.Minute))
	assert.Equal(t, 1, l.Len())
}

func TestKeyLimiter_DefaultKeyIsClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/v1/generate", nil)
	c.Request.RemoteAddr = "10.1.2.3:5555"

	l := NewKeyLimiter(BucketRule{}, nil)
	assert.Equal(t, "10.1.2.3", l.Key(c))
}
