package websocket_router

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/haierkeys/notegpt-sync-service/internal/dao"
	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	"github.com/haierkeys/notegpt-sync-service/internal/service"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"
	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"
	"github.com/haierkeys/notegpt-sync-service/pkg/writequeue"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recPeer struct {
	mu     sync.Mutex
	frames [][]byte
}

func (p *recPeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, append([]byte(nil), frame...))
	return nil
}

func (p *recPeer) Close(uint16, string) {}

// drain returns and clears every message received so far
func (p *recPeer) drain(t *testing.T) []protocol.Message {
	t.Helper()
	p.mu.Lock()
	frames := p.frames
	p.frames = nil
	p.mu.Unlock()

	out := make([]protocol.Message, 0, len(frames))
	for _, f := range frames {
		m, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

type harness struct {
	h        *SyncWSHandler
	registry *pkgapp.ConnRegistry
}

func newHarness(t *testing.T, cfg *service.ServiceConfig) *harness {
	t.Helper()
	dbCfg := dao.DatabaseConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "sync.sqlite3"), AutoMigrate: true}
	db, err := dao.NewDBEngineWithConfig(dbCfg, nil)
	require.NoError(t, err)
	wq := writequeue.New(nil, nil)
	t.Cleanup(func() {
		_ = wq.Shutdown(context.Background())
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo, err := dao.NewEntityRepository(dao.New(db, context.Background(), dao.WithConfig(&dbCfg), dao.WithWriteQueueManager(wq)))
	require.NoError(t, err)

	lg := zaptest.NewLogger(t)
	svc := service.NewSyncService(repo, lg, cfg)
	return &harness{
		h:        &SyncWSHandler{WSHandler: newWSHandler(svc, nil, lg)},
		registry: pkgapp.NewConnRegistry(),
	}
}

func (hs *harness) connect() (*pkgapp.WebsocketClient, *recPeer) {
	p := &recPeer{}
	c := pkgapp.NewWebsocketClient(hs.registry, p, "trace")
	hs.h.OnConnect(c)
	return c, p
}

func (hs *harness) send(c *pkgapp.WebsocketClient, frame string) {
	hs.h.OnMessage(c, []byte(frame))
}

func onlyAck(t *testing.T, msgs []protocol.Message) *protocol.Ack {
	t.Helper()
	require.Len(t, msgs, 1)
	ack, ok := msgs[0].(*protocol.Ack)
	require.True(t, ok, "expected ACK, got %T", msgs[0])
	return ack
}

func TestSync_StaleUpdateRejectedAndLatestVisibleToNewClient(t *testing.T) {
	hs := newHarness(t, nil)
	a, pa := hs.connect()
	b, pb := hs.connect()

	hs.send(a, `{"type":"CREATE","timestamp":100,"note":{"id":"n1","title":"X","content":"hi","createdAt":"2026-01-01T00:00:01Z","updatedAt":"2026-01-01T00:00:01Z"}}`)

	ack := onlyAck(t, pa.drain(t))
	assert.True(t, ack.Applied)
	assert.Equal(t, int64(100), ack.OriginalTimestamp)
	assert.Equal(t, a.ID, ack.ClientID)

	got := pb.drain(t)
	require.Len(t, got, 1)
	created := got[0].(*protocol.NoteChange)
	assert.Equal(t, protocol.TypeCreate, created.Type)
	assert.Equal(t, a.ID, created.ClientID)
	assert.Equal(t, "X", *created.Note.Title)

	hs.send(b, `{"type":"UPDATE","timestamp":200,"note":{"id":"n1","title":"Y","content":"old","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}}`)
	ack = onlyAck(t, pb.drain(t))
	assert.False(t, ack.Applied)
	assert.Nil(t, ack.Error)
	assert.Empty(t, pa.drain(t))

	c, pc := hs.connect()
	hs.send(c, `{"type":"INIT","timestamp":300}`)
	got = pc.drain(t)
	require.Len(t, got, 1)
	init := got[0].(*protocol.InitResponseNorm)
	assert.Equal(t, c.ID, init.ClientID)
	require.Len(t, init.Payload.Notes, 1)
	assert.Equal(t, "X", *init.Payload.Notes[0].Title)
	assert.Empty(t, init.Payload.Tags)
}

func TestSync_InitFlat(t *testing.T) {
	hs := newHarness(t, nil)
	a, pa := hs.connect()
	hs.send(a, `{"type":"CREATE","timestamp":1,"note":{"id":"n1","content":"","updatedAt":"2026-01-01T00:00:00Z"}}`)
	pa.drain(t)

	hs.send(a, `{"type":"INIT","timestamp":2,"format":"flat"}`)
	got := pa.drain(t)
	require.Len(t, got, 1)
	flat := got[0].(*protocol.InitResponse)
	assert.Equal(t, protocol.TypeInitResponse, flat.Type)
	require.Len(t, flat.Notes, 1)
	assert.Nil(t, flat.Notes[0].Title)
}

func TestSync_InboundClientIDIsIgnored(t *testing.T) {
	hs := newHarness(t, nil)
	a, _ := hs.connect()
	_, pb := hs.connect()

	hs.send(a, `{"type":"TAG_CREATE","timestamp":1,"clientId":"client_1_spoofed","tag":{"id":"t1","name":"go","updatedAt":"2026-01-01T00:00:00Z"}}`)
	got := pb.drain(t)
	require.Len(t, got, 1)
	tag := got[0].(*protocol.TagChange)
	assert.Equal(t, a.ID, tag.ClientID)
	assert.Equal(t, protocol.TypeTagCreate, tag.Type)
}

func TestSync_DeleteCascadeBroadcastsRelationRemovals(t *testing.T) {
	hs := newHarness(t, nil)
	a, pa := hs.connect()
	_, pb := hs.connect()

	hs.send(a, `{"type":"CREATE","timestamp":1,"note":{"id":"n1","content":"x","updatedAt":"2026-01-01T00:00:00Z"}}`)
	hs.send(a, `{"type":"TAG_CREATE","timestamp":2,"tag":{"id":"t1","name":"go","updatedAt":"2026-01-01T00:00:00Z"}}`)
	hs.send(a, `{"type":"CATEGORY_CREATE","timestamp":3,"category":{"id":"c1","name":"work","updatedAt":"2026-01-01T00:00:00Z"}}`)
	hs.send(a, `{"type":"RELATION_ADD","timestamp":4,"relationName":"note_tags","noteId":"n1","targetId":"t1"}`)
	hs.send(a, `{"type":"RELATION_ADD","timestamp":5,"relationName":"note_categories","noteId":"n1","targetId":"c1"}`)
	pa.drain(t)
	assert.Len(t, pb.drain(t), 5)

	hs.send(a, `{"type":"DELETE","timestamp":6,"noteId":"n1"}`)
	ack := onlyAck(t, pa.drain(t))
	assert.True(t, ack.Applied)

	got := pb.drain(t)
	require.Len(t, got, 3)
	del := got[0].(*protocol.NoteDelete)
	assert.Equal(t, "n1", del.NoteID)
	names := map[string]bool{}
	for _, m := range got[1:] {
		rel := m.(*protocol.RelationChange)
		assert.Equal(t, protocol.TypeRelationRemove, rel.Type)
		assert.Equal(t, "n1", rel.NoteID)
		names[string(rel.RelationName)] = true
	}
	assert.Equal(t, map[string]bool{"note_tags": true, "note_categories": true}, names)

	// deleting again is a no-op: ACK but nothing to announce
	hs.send(a, `{"type":"DELETE","timestamp":7,"noteId":"n1"}`)
	assert.True(t, onlyAck(t, pa.drain(t)).Applied)
	assert.Empty(t, pb.drain(t))
}

func TestSync_RelationToMissingTargetAcksError(t *testing.T) {
	hs := newHarness(t, nil)
	a, pa := hs.connect()
	_, pb := hs.connect()

	hs.send(a, `{"type":"RELATION_ADD","timestamp":9,"relationName":"note_tags","noteId":"ghost","targetId":"t1"}`)
	ack := onlyAck(t, pa.drain(t))
	assert.False(t, ack.Applied)
	require.NotNil(t, ack.Error)
	assert.Equal(t, code.ErrorRelationTarget.Code(), ack.Error.Code)
	assert.Equal(t, int64(9), ack.OriginalTimestamp)
	assert.Empty(t, pb.drain(t))
}

func TestSync_RelationRemoveIsIdempotentAndBroadcast(t *testing.T) {
	hs := newHarness(t, nil)
	a, pa := hs.connect()
	_, pb := hs.connect()

	hs.send(a, `{"type":"RELATION_REMOVE","timestamp":1,"relationName":"note_categories","noteId":"n1","targetId":"c1"}`)
	assert.True(t, onlyAck(t, pa.drain(t)).Applied)
	require.Len(t, pb.drain(t), 1)
}

func TestSync_StaleDeleteSkippedWhenEnabled(t *testing.T) {
	hs := newHarness(t, &service.ServiceConfig{Sync: service.SyncServiceConfig{RejectStaleDelete: true}})
	a, pa := hs.connect()
	_, pb := hs.connect()

	// updatedAt 2026-01-01T00:00:10Z = 1767225610000 ms
	hs.send(a, `{"type":"CREATE","timestamp":1,"note":{"id":"n1","content":"x","updatedAt":"2026-01-01T00:00:10Z"}}`)
	pa.drain(t)
	pb.drain(t)

	hs.send(a, `{"type":"DELETE","timestamp":1767225605000,"noteId":"n1"}`)
	assert.False(t, onlyAck(t, pa.drain(t)).Applied)
	assert.Empty(t, pb.drain(t))

	hs.send(a, `{"type":"DELETE","timestamp":1767225615000,"noteId":"n1"}`)
	assert.True(t, onlyAck(t, pa.drain(t)).Applied)
	require.Len(t, pb.drain(t), 1)
}

func TestSync_PingPong(t *testing.T) {
	hs := newHarness(t, nil)
	a, pa := hs.connect()

	hs.send(a, `{"type":"PING","timestamp":1}`)
	got := pa.drain(t)
	require.Len(t, got, 1)
	pong := got[0].(*protocol.Pong)
	assert.Equal(t, protocol.TypePong, pong.Type)
	assert.Equal(t, a.ID, pong.ClientID)
}

func TestSync_BadFramesAreDropped(t *testing.T) {
	hs := newHarness(t, nil)
	a, pa := hs.connect()
	_, pb := hs.connect()

	for _, frame := range []string{
		`not json`,
		`{"timestamp":1}`,
		`{"type":"BOGUS","timestamp":1}`,
		`{"type":"CREATE","timestamp":1,"note":{"id":"","content":"x","updatedAt":"2026-01-01T00:00:00Z"}}`,
		`{"type":"CREATE","timestamp":1,"note":{"id":"n1","content":"x"}}`,
		`{"type":"CREATE","timestamp":1}`,
		`{"type":"RELATION_ADD","timestamp":1,"relationName":"note_links","noteId":"n1","targetId":"x"}`,
		`{"type":"ACK","timestamp":1,"originalTimestamp":1,"applied":true}`,
	} {
		hs.send(a, frame)
	}
	assert.Empty(t, pa.drain(t))
	assert.Empty(t, pb.drain(t))
	assert.Equal(t, 2, hs.registry.Count())
}

func TestSync_UpdatedBeforeCreatedIsDropped(t *testing.T) {
	hs := newHarness(t, nil)
	a, pa := hs.connect()
	_, pb := hs.connect()

	hs.send(a, `{"type":"CREATE","timestamp":1,"note":{"id":"n1","content":"x","createdAt":"2026-05-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}}`)
	hs.send(a, `{"type":"TAG_CREATE","timestamp":2,"tag":{"id":"t1","name":"go","createdAt":"2026-05-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}}`)
	assert.Empty(t, pa.drain(t))
	assert.Empty(t, pb.drain(t))

	c, pc := hs.connect()
	hs.send(c, `{"type":"INIT","timestamp":3}`)
	got := pc.drain(t)
	require.Len(t, got, 1)
	init := got[0].(*protocol.InitResponseNorm)
	assert.Empty(t, init.Payload.Notes)
	assert.Empty(t, init.Payload.Tags)

	// equal timestamps are fine
	hs.send(a, `{"type":"CREATE","timestamp":4,"note":{"id":"n1","content":"x","createdAt":"2026-05-01T00:00:00Z","updatedAt":"2026-05-01T00:00:00Z"}}`)
	assert.True(t, onlyAck(t, pa.drain(t)).Applied)
	require.Len(t, pb.drain(t), 1)
}

// brokenStore fails every write the way a lost database would
type brokenStore struct {
	service.SyncService
}

func (brokenStore) UpsertNote(context.Context, *domain.Note) (domain.UpsertResult[domain.Note], error) {
	return domain.UpsertResult[domain.Note]{}, errors.Wrap(domain.ErrStorageFailure, "database is closed")
}

func TestSync_StorageFailureAcksSenderOnly(t *testing.T) {
	lg := zaptest.NewLogger(t)
	hs := &harness{
		h:        &SyncWSHandler{WSHandler: newWSHandler(brokenStore{}, nil, lg)},
		registry: pkgapp.NewConnRegistry(),
	}
	a, pa := hs.connect()
	_, pb := hs.connect()

	hs.send(a, `{"type":"CREATE","timestamp":42,"note":{"id":"n1","content":"x","updatedAt":"2026-01-01T00:00:00Z"}}`)
	ack := onlyAck(t, pa.drain(t))
	assert.False(t, ack.Applied)
	assert.Equal(t, int64(42), ack.OriginalTimestamp)
	require.NotNil(t, ack.Error)
	assert.Equal(t, code.ErrorStorageFailure.Code(), ack.Error.Code)
	assert.Empty(t, pb.drain(t))

	hs.send(a, `{"type":"PING","timestamp":43}`)
	got := pa.drain(t)
	require.Len(t, got, 1)
	assert.IsType(t, &protocol.Pong{}, got[0])
	assert.Equal(t, 2, hs.registry.Count())
}
