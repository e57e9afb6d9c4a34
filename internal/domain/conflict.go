package domain

import "time"

// Versioned entity carrying an identity and a last-modified timestamp
// Versioned 带有标识与最后修改时间的实体
type Versioned interface {
	EntityID() string
	LastModified() time.Time
}

// Decision 冲突裁决结果
type Decision int

const (
	// DecisionApply incoming replaces the stored entity
	DecisionApply Decision = iota
	// DecisionReject stored entity is kept
	DecisionReject
)

func (d Decision) String() string {
	if d == DecisionApply {
		return "apply"
	}
	return "reject"
}

// Resolve applies last-writer-wins: the incoming entity is applied only when nothing is
// stored or its updatedAt is strictly newer. Equal timestamps keep the stored value.
// Resolve 应用最后写入者胜出规则：仅当不存在已存储实体或传入实体的 updatedAt 严格更新时才应用，时间相等保留已存储值
func Resolve(existing, incoming Versioned) Decision {
	if isNil(existing) {
		return DecisionApply
	}
	if existing.LastModified().Before(incoming.LastModified()) {
		return DecisionApply
	}
	return DecisionReject
}

func isNil(v Versioned) bool {
	if v == nil {
		return true
	}
	switch e := v.(type) {
	case *Note:
		return e == nil
	case *Label:
		return e == nil
	}
	return false
}
