// Package syncclient headless client side of the sync protocol
// Package syncclient 同步协议的无界面客户端
package syncclient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"

	"github.com/pkg/errors"
)

// LocalStore the part of the entity store the agent needs; dao.EntityRepository satisfies it
// LocalStore 客户端所需的实体存储子集，dao.EntityRepository 也实现了该接口
type LocalStore interface {
	UpsertNote(ctx context.Context, note *domain.Note) (domain.UpsertResult[domain.Note], error)
	UpsertLabel(ctx context.Context, kind domain.Kind, label *domain.Label) (domain.UpsertResult[domain.Label], error)
	DeleteNote(ctx context.Context, id string, intentAt time.Time) (domain.DeleteResult, error)
	DeleteLabel(ctx context.Context, kind domain.Kind, id string, intentAt time.Time) (domain.DeleteResult, error)
	GetNote(ctx context.Context, id string) (*domain.Note, error)
	GetLabel(ctx context.Context, kind domain.Kind, id string) (*domain.Label, error)
	LinkRelation(ctx context.Context, rel domain.Relation) (bool, error)
	UnlinkRelation(ctx context.Context, rel domain.Relation) (bool, error)
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
}

var _ LocalStore = domain.EntityRepository(nil)

// MemoryStore in-memory LocalStore using the same last-writer-wins rule as the server
// MemoryStore 内存实现的 LocalStore，与服务端使用相同的 LWW 规则
type MemoryStore struct {
	mu        sync.RWMutex
	notes     map[string]*domain.Note
	labels    map[domain.Kind]map[string]*domain.Label
	relations map[string]domain.Relation
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notes: make(map[string]*domain.Note),
		labels: map[domain.Kind]map[string]*domain.Label{
			domain.KindTag:      {},
			domain.KindCategory: {},
		},
		relations: make(map[string]domain.Relation),
	}
}

func (s *MemoryStore) labelsOf(kind domain.Kind) (map[string]*domain.Label, error) {
	m, ok := s.labels[kind]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownKind, "kind %q", kind)
	}
	return m, nil
}

func (s *MemoryStore) UpsertNote(_ context.Context, note *domain.Note) (domain.UpsertResult[domain.Note], error) {
	in := note.Clone()
	in.Normalize()
	if !in.Valid() {
		return domain.UpsertResult[domain.Note]{}, errors.Wrapf(domain.ErrProtocol, "invalid note %q", in.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.notes[in.ID]
	if domain.Resolve(cur, in) == domain.DecisionReject {
		return domain.UpsertResult[domain.Note]{Applied: false, Current: cur.Clone()}, nil
	}
	in.Version = 1
	if cur != nil {
		in.Version = cur.Version + 1
	}
	s.notes[in.ID] = in
	return domain.UpsertResult[domain.Note]{Applied: true, Current: in.Clone()}, nil
}

func (s *MemoryStore) UpsertLabel(_ context.Context, kind domain.Kind, label *domain.Label) (domain.UpsertResult[domain.Label], error) {
	in := label.Clone()
	in.Normalize()
	if !in.Valid() {
		return domain.UpsertResult[domain.Label]{}, errors.Wrapf(domain.ErrProtocol, "invalid %s %q", kind, in.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.labelsOf(kind)
	if err != nil {
		return domain.UpsertResult[domain.Label]{}, err
	}
	cur := m[in.ID]
	if domain.Resolve(cur, in) == domain.DecisionReject {
		return domain.UpsertResult[domain.Label]{Applied: false, Current: cur.Clone()}, nil
	}
	m[in.ID] = in
	return domain.UpsertResult[domain.Label]{Applied: true, Current: in.Clone()}, nil
}

func (s *MemoryStore) DeleteNote(_ context.Context, id string, intentAt time.Time) (domain.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.notes[id]
	if !ok {
		return domain.DeleteResult{}, nil
	}
	if !intentAt.IsZero() && intentAt.Before(cur.UpdatedAt) {
		return domain.DeleteResult{Existed: true, Stale: true}, nil
	}
	delete(s.notes, id)
	return domain.DeleteResult{Existed: true, Relations: s.dropRelations(func(r domain.Relation) bool {
		return r.NoteID == id
	})}, nil
}

func (s *MemoryStore) DeleteLabel(_ context.Context, kind domain.Kind, id string, intentAt time.Time) (domain.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.labelsOf(kind)
	if err != nil {
		return domain.DeleteResult{}, err
	}
	cur, ok := m[id]
	if !ok {
		return domain.DeleteResult{}, nil
	}
	if !intentAt.IsZero() && intentAt.Before(cur.UpdatedAt) {
		return domain.DeleteResult{Existed: true, Stale: true}, nil
	}
	delete(m, id)
	name, _ := domain.RelationFor(kind)
	return domain.DeleteResult{Existed: true, Relations: s.dropRelations(func(r domain.Relation) bool {
		return r.Name == name && r.TargetID == id
	})}, nil
}

// dropRelations removes matching relations; caller holds the write lock
func (s *MemoryStore) dropRelations(match func(domain.Relation) bool) []domain.Relation {
	var removed []domain.Relation
	for key, r := range s.relations {
		if match(r) {
			removed = append(removed, r)
			delete(s.relations, key)
		}
	}
	sortRelations(removed)
	return removed
}

func (s *MemoryStore) GetNote(_ context.Context, id string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notes[id].Clone(), nil
}

func (s *MemoryStore) GetLabel(_ context.Context, kind domain.Kind, id string) (*domain.Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.labelsOf(kind)
	if err != nil {
		return nil, err
	}
	return m[id].Clone(), nil
}

func (s *MemoryStore) LinkRelation(_ context.Context, rel domain.Relation) (bool, error) {
	kind, ok := rel.Name.Kind()
	if !ok {
		return false, errors.Wrapf(domain.ErrUnknownKind, "relation %q", rel.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[rel.NoteID]; !ok {
		return false, errors.Wrapf(domain.ErrRelationTarget, "note %q", rel.NoteID)
	}
	if _, ok := s.labels[kind][rel.TargetID]; !ok {
		return false, errors.Wrapf(domain.ErrRelationTarget, "%s %q", kind, rel.TargetID)
	}
	if _, ok := s.relations[rel.Key()]; ok {
		return false, nil
	}
	s.relations[rel.Key()] = rel
	return true, nil
}

func (s *MemoryStore) UnlinkRelation(_ context.Context, rel domain.Relation) (bool, error) {
	if _, ok := rel.Name.Kind(); !ok {
		return false, errors.Wrapf(domain.ErrUnknownKind, "relation %q", rel.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.relations[rel.Key()]; !ok {
		return false, nil
	}
	delete(s.relations, rel.Key())
	return true, nil
}

// Snapshot entities ordered by updatedAt descending, relations by key
// Snapshot 实体按 updatedAt 倒序，关联按 key 排序
func (s *MemoryStore) Snapshot(_ context.Context) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &domain.Snapshot{
		Notes:      make([]*domain.Note, 0, len(s.notes)),
		Tags:       cloneLabels(s.labels[domain.KindTag]),
		Categories: cloneLabels(s.labels[domain.KindCategory]),
	}
	for _, n := range s.notes {
		snap.Notes = append(snap.Notes, n.Clone())
	}
	sort.Slice(snap.Notes, func(i, j int) bool {
		if snap.Notes[i].UpdatedAt.Equal(snap.Notes[j].UpdatedAt) {
			return snap.Notes[i].ID < snap.Notes[j].ID
		}
		return snap.Notes[i].UpdatedAt.After(snap.Notes[j].UpdatedAt)
	})

	for _, r := range s.relations {
		if r.Name == domain.RelationNoteTags {
			snap.NoteTags = append(snap.NoteTags, r)
		} else {
			snap.NoteCategories = append(snap.NoteCategories, r)
		}
	}
	sortRelations(snap.NoteTags)
	sortRelations(snap.NoteCategories)
	return snap, nil
}

func cloneLabels(m map[string]*domain.Label) []*domain.Label {
	out := make([]*domain.Label, 0, len(m))
	for _, l := range m {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func sortRelations(rs []domain.Relation) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Key() < rs[j].Key() })
}
