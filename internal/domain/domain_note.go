// Package domain 定义领域模型和接口
package domain

import "time"

// Kind entity collection kind
// Kind 实体集合类型
type Kind string

const (
	KindNote     Kind = "note"
	KindTag      Kind = "tag"
	KindCategory Kind = "category"
)

// Note note domain model
// Note 笔记领域模型
type Note struct {
	ID        string
	Title     *string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Version server side overwrite counter, informational only
	// Version 服务端覆盖计数，仅供参考
	Version int64
}

// EntityID implements Versioned
func (n *Note) EntityID() string { return n.ID }

// LastModified implements Versioned
func (n *Note) LastModified() time.Time { return n.UpdatedAt }

// Normalize brings timestamps to UTC millisecond precision and fills a missing createdAt
// Normalize 将时间统一为 UTC 毫秒精度，并补全缺失的 createdAt
func (n *Note) Normalize() {
	n.UpdatedAt = NormalizeTime(n.UpdatedAt)
	n.CreatedAt = NormalizeTime(n.CreatedAt)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = n.UpdatedAt
	}
}

// Valid reports whether the note satisfies updatedAt >= createdAt
// Valid 校验 updatedAt >= createdAt
func (n *Note) Valid() bool {
	return n.ID != "" && !n.UpdatedAt.IsZero() && !n.UpdatedAt.Before(n.CreatedAt)
}

// Clone returns a deep copy
// Clone 返回深拷贝
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	if n.Title != nil {
		t := *n.Title
		c.Title = &t
	}
	return &c
}

// NormalizeTime truncates a timestamp to the precision the store keeps
// NormalizeTime 将时间截断为存储精度（毫秒）
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}

// TimeFromMillis converts epoch milliseconds to a UTC time
func TimeFromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
