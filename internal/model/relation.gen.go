package model

// NoteTag mapped from table <note_tags>
type NoteTag struct {
	NoteID string `gorm:"column:note_id;primaryKey;size:191" json:"noteId"`
	TagID  string `gorm:"column:tag_id;primaryKey;size:191;index" json:"tagId"`
}

// NoteCategory mapped from table <note_categories>
type NoteCategory struct {
	NoteID     string `gorm:"column:note_id;primaryKey;size:191" json:"noteId"`
	CategoryID string `gorm:"column:category_id;primaryKey;size:191;index" json:"categoryId"`
}
