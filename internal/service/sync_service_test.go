package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stubRepo overrides the methods a test needs; anything else panics through the nil embed
type stubRepo struct {
	domain.EntityRepository

	mu        sync.Mutex
	intents   []time.Time
	deleteRes domain.DeleteResult

	snapshotCalls atomic.Int32
	release       chan struct{}
	entered       chan struct{}

	upsertRes domain.UpsertResult[domain.Note]
	upsertErr error
	linkErr   error
}

func (r *stubRepo) DeleteNote(_ context.Context, _ string, intentAt time.Time) (domain.DeleteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intentAt)
	res := r.deleteRes
	if !intentAt.IsZero() {
		res.Stale = true
	}
	return res, nil
}

func (r *stubRepo) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	r.snapshotCalls.Add(1)
	if r.entered != nil {
		close(r.entered)
		r.entered = nil
	}
	if r.release != nil {
		<-r.release
	}
	return &domain.Snapshot{Notes: []*domain.Note{{ID: "n1"}}}, nil
}

func (r *stubRepo) UpsertNote(_ context.Context, _ *domain.Note) (domain.UpsertResult[domain.Note], error) {
	return r.upsertRes, r.upsertErr
}

func (r *stubRepo) LinkRelation(_ context.Context, _ domain.Relation) (bool, error) {
	return r.linkErr == nil, r.linkErr
}

func TestSyncService_DeleteIntentDisabledByDefault(t *testing.T) {
	repo := &stubRepo{}
	svc := NewSyncService(repo, zaptest.NewLogger(t), nil)

	res, err := svc.DeleteNote(context.Background(), "n1", time.Now())
	require.NoError(t, err)
	assert.False(t, res.Stale)
	require.Len(t, repo.intents, 1)
	assert.True(t, repo.intents[0].IsZero())
}

func TestSyncService_RejectStaleDeletePassesIntent(t *testing.T) {
	repo := &stubRepo{}
	svc := NewSyncService(repo, zaptest.NewLogger(t), &ServiceConfig{Sync: SyncServiceConfig{RejectStaleDelete: true}})

	at := time.UnixMilli(1700000000000).UTC()
	res, err := svc.DeleteNote(context.Background(), "n1", at)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, []time.Time{at}, repo.intents)
}

func TestSyncService_SnapshotCoalescesConcurrentReads(t *testing.T) {
	repo := &stubRepo{release: make(chan struct{}), entered: make(chan struct{})}
	entered := repo.entered
	svc := NewSyncService(repo, zaptest.NewLogger(t), nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*domain.Snapshot, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = svc.Snapshot(context.Background())
	}()
	<-entered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = svc.Snapshot(context.Background())
		}(i)
	}
	// give the waiters time to join the in-flight read
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	assert.Equal(t, int32(1), repo.snapshotCalls.Load())
	for _, s := range results {
		require.NotNil(t, s)
		assert.Equal(t, "n1", s.Notes[0].ID)
	}
}

// growingRepo holds the first snapshot read open after it has copied the notes
type growingRepo struct {
	domain.EntityRepository

	mu      sync.Mutex
	notes   []*domain.Note
	reads   int
	entered chan struct{}
	release chan struct{}
}

func (r *growingRepo) Snapshot(context.Context) (*domain.Snapshot, error) {
	r.mu.Lock()
	r.reads++
	first := r.reads == 1
	notes := append([]*domain.Note(nil), r.notes...)
	r.mu.Unlock()

	if first {
		close(r.entered)
		<-r.release
	}
	return &domain.Snapshot{Notes: notes}, nil
}

func (r *growingRepo) UpsertNote(_ context.Context, n *domain.Note) (domain.UpsertResult[domain.Note], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return domain.UpsertResult[domain.Note]{Applied: true, Current: n}, nil
}

func TestSyncService_SnapshotAfterWriteDoesNotJoinOlderRead(t *testing.T) {
	repo := &growingRepo{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewSyncService(repo, zaptest.NewLogger(t), nil)

	early := make(chan *domain.Snapshot, 1)
	go func() {
		s, _ := svc.Snapshot(context.Background())
		early <- s
	}()
	<-repo.entered

	_, err := svc.UpsertNote(context.Background(), &domain.Note{ID: "n1", UpdatedAt: time.Now()})
	require.NoError(t, err)

	late := make(chan *domain.Snapshot, 1)
	go func() {
		s, _ := svc.Snapshot(context.Background())
		late <- s
	}()

	// the late read must finish while the early one is still held open
	var got *domain.Snapshot
	select {
	case got = <-late:
	case <-time.After(2 * time.Second):
	}
	close(repo.release)
	if got == nil {
		got = <-late
	}

	require.NotNil(t, got)
	assert.Len(t, got.Notes, 1)
	assert.Len(t, (<-early).Notes, 0)
}

func TestSyncService_SnapshotSurvivesCallerCancel(t *testing.T) {
	repo := &stubRepo{}
	svc := NewSyncService(repo, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, s.Notes, 1)
}

func TestSyncService_UpsertRejectedIsNotAnError(t *testing.T) {
	stored := &domain.Note{ID: "n1", UpdatedAt: time.UnixMilli(2000)}
	repo := &stubRepo{upsertRes: domain.UpsertResult[domain.Note]{Applied: false, Current: stored}}
	svc := NewSyncService(repo, zaptest.NewLogger(t), nil)

	res, err := svc.UpsertNote(context.Background(), &domain.Note{ID: "n1", UpdatedAt: time.UnixMilli(1000)})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Same(t, stored, res.Current)
}

func TestSyncService_ErrorsPassThrough(t *testing.T) {
	storageErr := domain.NewStorageError("upsert note", errors.New("disk full"))
	repo := &stubRepo{upsertErr: storageErr, linkErr: errors.Wrap(domain.ErrRelationTarget, "tag t1")}
	svc := NewSyncService(repo, zaptest.NewLogger(t), nil)

	_, err := svc.UpsertNote(context.Background(), &domain.Note{ID: "n1"})
	assert.ErrorIs(t, err, domain.ErrStorageFailure)

	created, err := svc.Link(context.Background(), domain.Relation{Name: domain.RelationNoteTags, NoteID: "n1", TargetID: "t1"})
	assert.False(t, created)
	assert.ErrorIs(t, err, domain.ErrRelationTarget)
}
