package model

// Note mapped from table <notes>
type Note struct {
	ID      string  `gorm:"column:id;primaryKey;size:191" json:"id" form:"id"`
	Title   *string `gorm:"column:title" json:"title" form:"title"`
	Content string  `gorm:"column:content;type:text;not null" json:"content" form:"content"`
	Ctime   int64   `gorm:"column:ctime;not null;default:0" json:"ctime" form:"ctime"`
	Mtime   int64   `gorm:"column:mtime;not null;default:0;index" json:"mtime" form:"mtime"`
	Version int64   `gorm:"column:version;not null;default:1" json:"version" form:"version"`
}
