package domain

import "time"

// Label tag or category domain model, the two are structurally identical
// Label 标签或分类领域模型，两者结构相同
type Label struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Tag 标签
type Tag = Label

// Category 分类
type Category = Label

// EntityID implements Versioned
func (l *Label) EntityID() string { return l.ID }

// LastModified implements Versioned
func (l *Label) LastModified() time.Time { return l.UpdatedAt }

// Normalize 将时间统一为 UTC 毫秒精度，并补全缺失的 createdAt
func (l *Label) Normalize() {
	l.UpdatedAt = NormalizeTime(l.UpdatedAt)
	l.CreatedAt = NormalizeTime(l.CreatedAt)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = l.UpdatedAt
	}
}

// Valid 校验 id、name 以及 updatedAt >= createdAt
func (l *Label) Valid() bool {
	return l.ID != "" && l.Name != "" && !l.UpdatedAt.IsZero() && !l.UpdatedAt.Before(l.CreatedAt)
}

// Clone returns a copy
func (l *Label) Clone() *Label {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// IsLabelKind reports whether k names a tag-like collection
func IsLabelKind(k Kind) bool {
	return k == KindTag || k == KindCategory
}
