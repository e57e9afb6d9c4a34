package domain

// RelationName wire and table name of a note relation
// RelationName 关联关系名称（同时也是表名）
type RelationName string

const (
	RelationNoteTags       RelationName = "note_tags"
	RelationNoteCategories RelationName = "note_categories"
)

// Kind returns the label kind the relation points at
// Kind 返回关联目标的实体类型
func (r RelationName) Kind() (Kind, bool) {
	switch r {
	case RelationNoteTags:
		return KindTag, true
	case RelationNoteCategories:
		return KindCategory, true
	}
	return "", false
}

// RelationFor returns the relation that links notes to labels of kind k
func RelationFor(k Kind) (RelationName, bool) {
	switch k {
	case KindTag:
		return RelationNoteTags, true
	case KindCategory:
		return RelationNoteCategories, true
	}
	return "", false
}

// Relation unordered pair {noteId, targetId}; existence is boolean
// Relation 笔记与标签/分类的关联，仅有存在与否两种状态
type Relation struct {
	Name     RelationName
	NoteID   string
	TargetID string
}

// Key returns a stable map key for the relation
func (r Relation) Key() string {
	return string(r.Name) + "|" + r.NoteID + "|" + r.TargetID
}

// Snapshot consistent point-in-time read of every collection
// Snapshot 全量集合的一致性快照
type Snapshot struct {
	Notes          []*Note
	Tags           []*Label
	Categories     []*Label
	NoteTags       []Relation
	NoteCategories []Relation
}

// Counts 各集合数量
type Counts struct {
	Notes          int64 `json:"notes"`
	Tags           int64 `json:"tags"`
	Categories     int64 `json:"categories"`
	NoteTags       int64 `json:"noteTags"`
	NoteCategories int64 `json:"noteCategories"`
}

// UpsertResult outcome of a conflict-aware upsert
// UpsertResult 冲突感知写入的结果
type UpsertResult[T any] struct {
	// Applied false means the stored value won (ConflictRejected, not an error)
	// Applied 为 false 表示已存储的值胜出（并非错误）
	Applied bool
	// Current stored state after the call
	// Current 调用后的存储状态
	Current *T
}

// DeleteResult outcome of a cascading delete
// DeleteResult 级联删除的结果
type DeleteResult struct {
	Existed bool
	// Stale the delete was older than the stored updatedAt and was skipped
	// Stale 删除意图早于已存储的 updatedAt，已跳过
	Stale bool
	// Relations rows removed in the same transaction
	// Relations 同一事务中被删除的关联
	Relations []Relation
}
