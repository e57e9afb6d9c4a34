package protocol

import (
	"github.com/haierkeys/notegpt-sync-service/internal/domain"
)

// NoteFromDomain 领域笔记转为传输格式
func NoteFromDomain(n *domain.Note) *Note {
	if n == nil {
		return nil
	}
	var title *string
	if n.Title != nil {
		t := *n.Title
		title = &t
	}
	return &Note{
		ID:        n.ID,
		Title:     title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

// ToDomain returns a normalized domain note
// ToDomain 转为规范化的领域笔记
func (n *Note) ToDomain() *domain.Note {
	if n == nil {
		return nil
	}
	var title *string
	if n.Title != nil {
		t := *n.Title
		title = &t
	}
	d := &domain.Note{
		ID:        n.ID,
		Title:     title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	d.Normalize()
	return d
}

// LabelFromDomain 领域标签/分类转为传输格式
func LabelFromDomain(l *domain.Label) *Label {
	if l == nil {
		return nil
	}
	return &Label{
		ID:        l.ID,
		Name:      l.Name,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

// ToDomain 转为规范化的领域标签/分类
func (l *Label) ToDomain() *domain.Label {
	if l == nil {
		return nil
	}
	d := &domain.Label{
		ID:        l.ID,
		Name:      l.Name,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	d.Normalize()
	return d
}

// NotesFromDomain 批量转换笔记，结果永不为 nil
func NotesFromDomain(notes []*domain.Note) []*Note {
	out := make([]*Note, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteFromDomain(n))
	}
	return out
}

// LabelsFromDomain 批量转换标签/分类，结果永不为 nil
func LabelsFromDomain(labels []*domain.Label) []*Label {
	out := make([]*Label, 0, len(labels))
	for _, l := range labels {
		out = append(out, LabelFromDomain(l))
	}
	return out
}

// PayloadFromSnapshot builds the normalized INIT payload
// PayloadFromSnapshot 由快照构建规范化载荷
func PayloadFromSnapshot(s *domain.Snapshot) NormalizedPayload {
	p := NormalizedPayload{
		Notes:      NotesFromDomain(s.Notes),
		Tags:       LabelsFromDomain(s.Tags),
		Categories: LabelsFromDomain(s.Categories),
		Relations: Relations{
			NoteTags:       make([]NoteTag, 0, len(s.NoteTags)),
			NoteCategories: make([]NoteCategory, 0, len(s.NoteCategories)),
		},
	}
	for _, r := range s.NoteTags {
		p.Relations.NoteTags = append(p.Relations.NoteTags, NoteTag{NoteID: r.NoteID, TagID: r.TargetID})
	}
	for _, r := range s.NoteCategories {
		p.Relations.NoteCategories = append(p.Relations.NoteCategories, NoteCategory{NoteID: r.NoteID, CategoryID: r.TargetID})
	}
	return p
}

// ToSnapshot 转为领域快照
func (p *NormalizedPayload) ToSnapshot() *domain.Snapshot {
	s := &domain.Snapshot{}
	for _, n := range p.Notes {
		if n != nil {
			s.Notes = append(s.Notes, n.ToDomain())
		}
	}
	for _, l := range p.Tags {
		if l != nil {
			s.Tags = append(s.Tags, l.ToDomain())
		}
	}
	for _, l := range p.Categories {
		if l != nil {
			s.Categories = append(s.Categories, l.ToDomain())
		}
	}
	for _, r := range p.Relations.NoteTags {
		s.NoteTags = append(s.NoteTags, domain.Relation{Name: domain.RelationNoteTags, NoteID: r.NoteID, TargetID: r.TagID})
	}
	for _, r := range p.Relations.NoteCategories {
		s.NoteCategories = append(s.NoteCategories, domain.Relation{Name: domain.RelationNoteCategories, NoteID: r.NoteID, TargetID: r.CategoryID})
	}
	return s
}

// Relation 转为领域关联
func (m *RelationChange) Relation() domain.Relation {
	return domain.Relation{Name: m.RelationName, NoteID: m.NoteID, TargetID: m.TargetID}
}

// NewRelationChange 由领域关联构建 RELATION_ADD/RELATION_REMOVE 消息
func NewRelationChange(r domain.Relation) *RelationChange {
	return &RelationChange{RelationName: r.Name, NoteID: r.NoteID, TargetID: r.TargetID}
}
