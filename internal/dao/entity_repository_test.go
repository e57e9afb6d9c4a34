package dao

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	"github.com/haierkeys/notegpt-sync-service/internal/model"
	"github.com/haierkeys/notegpt-sync-service/pkg/writequeue"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *EntityRepository {
	t.Helper()

	cfg := DatabaseConfig{
		Type:        "sqlite",
		Path:        filepath.Join(t.TempDir(), "test.sqlite3"),
		AutoMigrate: true,
	}
	db, err := NewDBEngineWithConfig(cfg, nil)
	require.NoError(t, err)

	wq := writequeue.New(nil, nil)
	t.Cleanup(func() {
		_ = wq.Shutdown(context.Background())
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	d := New(db, context.Background(), WithConfig(&cfg), WithWriteQueueManager(wq))
	repo, err := NewEntityRepository(d)
	require.NoError(t, err)
	return repo
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ts(sec int) time.Time { return baseTime.Add(time.Duration(sec) * time.Second) }

func strPtr(s string) *string { return &s }

func testNote(id, title string, updated int) *domain.Note {
	return &domain.Note{ID: id, Title: strPtr(title), Content: "content of " + title, CreatedAt: ts(0), UpdatedAt: ts(updated)}
}

func testLabel(id, name string, updated int) *domain.Label {
	return &domain.Label{ID: id, Name: name, CreatedAt: ts(0), UpdatedAt: ts(updated)}
}

func TestUpsertNote_LastWriterWins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	res, err := repo.UpsertNote(ctx, testNote("n1", "X", 10))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(1), res.Current.Version)

	// older write is rejected and the stored value returned
	res, err = repo.UpsertNote(ctx, testNote("n1", "older", 5))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "X", *res.Current.Title)

	// equal timestamp keeps the existing value
	res, err = repo.UpsertNote(ctx, testNote("n1", "tie", 10))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "X", *res.Current.Title)

	res, err = repo.UpsertNote(ctx, testNote("n1", "newer", 20))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(2), res.Current.Version)

	stored, err := repo.GetNote(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "newer", *stored.Title)
	assert.Equal(t, ts(20), stored.UpdatedAt)
	assert.Equal(t, ts(0), stored.CreatedAt)
	assert.Equal(t, int64(2), stored.Version)
}

func TestUpsertNote_NilTitle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	n := testNote("n1", "X", 1)
	n.Title = nil
	_, err := repo.UpsertNote(ctx, n)
	require.NoError(t, err)

	stored, err := repo.GetNote(ctx, "n1")
	require.NoError(t, err)
	assert.Nil(t, stored.Title)
}

func TestUpsertLabel_PerKind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	res, err := repo.UpsertLabel(ctx, domain.KindTag, testLabel("x1", "work", 10))
	require.NoError(t, err)
	assert.True(t, res.Applied)

	// same id in the category table is a different entity
	res, err = repo.UpsertLabel(ctx, domain.KindCategory, testLabel("x1", "inbox", 1))
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = repo.UpsertLabel(ctx, domain.KindTag, testLabel("x1", "stale", 9))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "work", res.Current.Name)

	tag, err := repo.GetLabel(ctx, domain.KindTag, "x1")
	require.NoError(t, err)
	assert.Equal(t, "work", tag.Name)

	cat, err := repo.GetLabel(ctx, domain.KindCategory, "x1")
	require.NoError(t, err)
	assert.Equal(t, "inbox", cat.Name)

	_, err = repo.UpsertLabel(ctx, domain.KindNote, testLabel("x1", "bad", 1))
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestListNotes_OrderedByUpdatedDesc(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, upd := range []int{5, 30, 10} {
		_, err := repo.UpsertNote(ctx, testNote(fmt.Sprintf("n%d", i), "t", upd))
		require.NoError(t, err)
	}

	notes, err := repo.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, []string{"n1", "n2", "n0"}, []string{notes[0].ID, notes[1].ID, notes[2].ID})
}

func TestLinkRelation_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertNote(ctx, testNote("n1", "X", 1))
	require.NoError(t, err)
	_, err = repo.UpsertLabel(ctx, domain.KindTag, testLabel("t1", "work", 1))
	require.NoError(t, err)

	rel := domain.Relation{Name: domain.RelationNoteTags, NoteID: "n1", TargetID: "t1"}

	created, err := repo.LinkRelation(ctx, rel)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.LinkRelation(ctx, rel)
	require.NoError(t, err)
	assert.False(t, created)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.NoteTags)

	removed, err := repo.UnlinkRelation(ctx, rel)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.UnlinkRelation(ctx, rel)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLinkRelation_MissingTarget(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertNote(ctx, testNote("n1", "X", 1))
	require.NoError(t, err)

	_, err = repo.LinkRelation(ctx, domain.Relation{Name: domain.RelationNoteCategories, NoteID: "n1", TargetID: "missing"})
	assert.ErrorIs(t, err, domain.ErrRelationTarget)
	assert.NotErrorIs(t, err, domain.ErrStorageFailure)
}

func seedRelations(t *testing.T, repo *EntityRepository, noteID string, tags, cats int) {
	t.Helper()
	ctx := context.Background()
	_, err := repo.UpsertNote(ctx, testNote(noteID, noteID, 1))
	require.NoError(t, err)
	for i := 0; i < tags; i++ {
		id := fmt.Sprintf("t%d", i)
		_, err := repo.UpsertLabel(ctx, domain.KindTag, testLabel(id, id, 1))
		require.NoError(t, err)
		_, err = repo.LinkRelation(ctx, domain.Relation{Name: domain.RelationNoteTags, NoteID: noteID, TargetID: id})
		require.NoError(t, err)
	}
	for i := 0; i < cats; i++ {
		id := fmt.Sprintf("c%d", i)
		_, err := repo.UpsertLabel(ctx, domain.KindCategory, testLabel(id, id, 1))
		require.NoError(t, err)
		_, err = repo.LinkRelation(ctx, domain.Relation{Name: domain.RelationNoteCategories, NoteID: noteID, TargetID: id})
		require.NoError(t, err)
	}
}

func TestDeleteNote_Cascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedRelations(t, repo, "n1", 3, 2)
	seedRelations(t, repo, "n2", 1, 0)

	res, err := repo.DeleteNote(ctx, "n1", time.Time{})
	require.NoError(t, err)
	assert.True(t, res.Existed)
	assert.Len(t, res.Relations, 5)

	rels, err := repo.RelationsForNote(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, rels)

	rels, err = repo.RelationsForNote(ctx, "n2")
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	res, err = repo.DeleteNote(ctx, "n1", time.Time{})
	require.NoError(t, err)
	assert.False(t, res.Existed)
}

func TestDeleteLabel_Cascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedRelations(t, repo, "n1", 2, 1)
	seedRelations(t, repo, "n2", 2, 0)

	res, err := repo.DeleteLabel(ctx, domain.KindTag, "t0", time.Time{})
	require.NoError(t, err)
	assert.True(t, res.Existed)
	require.Len(t, res.Relations, 2)
	for _, rel := range res.Relations {
		assert.Equal(t, domain.RelationNoteTags, rel.Name)
		assert.Equal(t, "t0", rel.TargetID)
	}

	notes, err := repo.NotesForLabel(ctx, domain.KindTag, "t1")
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	notes, err = repo.NotesForLabel(ctx, domain.KindTag, "t0")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDeleteNote_StaleIntentSkipped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertNote(ctx, testNote("n1", "X", 10))
	require.NoError(t, err)

	res, err := repo.DeleteNote(ctx, "n1", ts(5))
	require.NoError(t, err)
	assert.True(t, res.Stale)

	stored, err := repo.GetNote(ctx, "n1")
	require.NoError(t, err)
	assert.NotNil(t, stored)

	res, err = repo.DeleteNote(ctx, "n1", ts(11))
	require.NoError(t, err)
	assert.True(t, res.Existed)
	assert.False(t, res.Stale)
}

func TestSnapshot_NeverObservesPartialCascade(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const notes = 20
	for i := 0; i < notes; i++ {
		seedRelations(t, repo, fmt.Sprintf("n%02d", i), 3, 2)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < notes; i++ {
			_, err := repo.DeleteNote(ctx, fmt.Sprintf("n%02d", i), time.Time{})
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < 30; i++ {
		snap, err := repo.Snapshot(ctx)
		require.NoError(t, err)

		present := make(map[string]bool, len(snap.Notes))
		for _, n := range snap.Notes {
			present[n.ID] = true
		}
		for _, rel := range append(snap.NoteTags, snap.NoteCategories...) {
			assert.True(t, present[rel.NoteID], "relation %s references deleted note", rel.Key())
		}
	}
	wg.Wait()

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Notes)
	assert.Equal(t, int64(0), counts.NoteTags+counts.NoteCategories)
}

func TestSnapshot_MatchesCounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedRelations(t, repo, "n1", 2, 3)
	_, err := repo.UpsertNote(ctx, testNote("n2", "plain", 3))
	require.NoError(t, err)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	counts, err := repo.Counts(ctx)
	require.NoError(t, err)

	assert.Equal(t, counts.Notes, int64(len(snap.Notes)))
	assert.Equal(t, counts.Tags, int64(len(snap.Tags)))
	assert.Equal(t, counts.Categories, int64(len(snap.Categories)))
	assert.Equal(t, counts.NoteTags, int64(len(snap.NoteTags)))
	assert.Equal(t, counts.NoteCategories, int64(len(snap.NoteCategories)))
}

func TestPruneOrphanRelations(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedRelations(t, repo, "n1", 1, 1)
	require.NoError(t, repo.dao.Db.Create(&model.NoteTag{NoteID: "ghost", TagID: "t0"}).Error)
	require.NoError(t, repo.dao.Db.Create(&model.NoteCategory{NoteID: "n1", CategoryID: "ghost"}).Error)

	pruned, err := repo.PruneOrphanRelations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.NoteTags)
	assert.Equal(t, int64(1), counts.NoteCategories)

	assert.NoError(t, repo.Checkpoint(ctx))
}

// 任意顺序应用两次写入，最终状态等于时间戳较大的写入；时间戳相等时先写入者胜出
func TestProperty1_UpsertConvergesToLatest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("final state equals the larger timestamp regardless of order", prop.ForAll(
		func(t1, t2 int, swap bool) bool {
			run++
			id := fmt.Sprintf("p%d", run)
			u1 := testNote(id, "u1", t1)
			u2 := testNote(id, "u2", t2)

			first, second := u1, u2
			if swap {
				first, second = u2, u1
			}
			if _, err := repo.UpsertNote(ctx, first); err != nil {
				return false
			}
			if _, err := repo.UpsertNote(ctx, second); err != nil {
				return false
			}

			stored, err := repo.GetNote(ctx, id)
			if err != nil || stored == nil {
				return false
			}
			switch {
			case t1 > t2:
				return *stored.Title == "u1"
			case t2 > t1:
				return *stored.Title == "u2"
			default:
				return *stored.Title == *first.Title
			}
		},
		gen.IntRange(1, 50),
		gen.IntRange(1, 50),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
