package app

import (
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	mu        sync.Mutex
	frames    [][]byte
	closeCode uint16
	closed    bool
	failSend  bool
}

func (p *fakePeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSend {
		return errors.New("broken pipe")
	}
	p.frames = append(p.frames, frame)
	return nil
}

func (p *fakePeer) Close(code uint16, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCode = code
}

func (p *fakePeer) received() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.frames...)
}

var clientIDPattern = regexp.MustCompile(`^client_\d+_[0-9a-z]{7}$`)

func TestNewClientID_Format(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	for i := 0; i < 100; i++ {
		id := NewClientID(now)
		assert.Regexp(t, clientIDPattern, id)
		assert.Contains(t, id, "_"+strconv.FormatInt(now.UnixMilli(), 10)+"_")
	}
}

func TestRegistry_BroadcastExcludesSender(t *testing.T) {
	r := NewConnRegistry()
	a, b, c := &fakePeer{}, &fakePeer{}, &fakePeer{}

	idA := r.Register(a)
	r.Register(b)
	r.Register(c)
	assert.Equal(t, 3, r.Count())

	n := r.Broadcast([]byte("hello"), idA)
	assert.Equal(t, 2, n)
	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
	assert.Len(t, c.received(), 1)
}

func TestRegistry_BroadcastCountsOnlyDelivered(t *testing.T) {
	r := NewConnRegistry()
	r.Register(&fakePeer{})
	r.Register(&fakePeer{failSend: true})

	assert.Equal(t, 1, r.Broadcast([]byte("x"), ""))
}

func TestRegistry_SendAfterUnregisterIsNoop(t *testing.T) {
	r := NewConnRegistry()
	p := &fakePeer{}
	id := r.Register(p)

	assert.True(t, r.Send(id, []byte("one")))
	assert.True(t, r.Unregister(id))
	assert.False(t, r.Unregister(id))
	assert.False(t, r.Send(id, []byte("two")))
	assert.Len(t, p.received(), 1)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_SweepClosesIdleConnections(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := base
	var counts []int

	r := NewConnRegistry(WithHeartbeatTimeout(60*time.Second), WithCountObserver(func(n int) { counts = append(counts, n) }))
	r.now = func() time.Time { return clock }

	idle := &fakePeer{}
	busy := &fakePeer{}
	idleID := r.Register(idle)
	busyID := r.Register(busy)

	clock = base.Add(45 * time.Second)
	r.Touch(busyID)

	expired := r.Sweep(base.Add(61 * time.Second))
	assert.Equal(t, []string{idleID}, expired)
	assert.True(t, idle.closed)
	assert.Equal(t, CloseHeartbeatTimeout, idle.closeCode)
	assert.False(t, busy.closed)
	assert.Equal(t, []string{busyID}, r.IDs())
	assert.Equal(t, []int{1, 2, 1}, counts)

	assert.Empty(t, r.Sweep(base.Add(100*time.Second)))
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewConnRegistry()
	peers := []*fakePeer{{}, {}}
	for _, p := range peers {
		r.Register(p)
	}
	r.CloseAll(CloseNormal, "shutdown")
	for _, p := range peers {
		assert.True(t, p.closed)
		assert.Equal(t, CloseNormal, p.closeCode)
	}
	assert.Equal(t, 0, r.Count())
}

// 并发注册时客户端 ID 互不相同，广播次数等于其他连接数
func TestProperty1_RegisterConcurrentUniqueIDs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("ids are unique and broadcast reaches everyone else", prop.ForAll(
		func(n int) bool {
			r := NewConnRegistry()
			ids := make([]string, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ids[i] = r.Register(&fakePeer{})
				}(i)
			}
			wg.Wait()

			seen := map[string]bool{}
			for _, id := range ids {
				if seen[id] || !clientIDPattern.MatchString(id) {
					return false
				}
				seen[id] = true
			}
			return r.Count() == n && r.Broadcast([]byte("x"), ids[0]) == n-1
		},
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

func TestRegistry_TouchUnknownIsSafe(t *testing.T) {
	r := NewConnRegistry()
	require.NotPanics(t, func() { r.Touch("client_missing") })
}
