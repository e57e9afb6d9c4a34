package model

// Label row shape shared by <tags> and <categories>
type Label struct {
	ID      string `gorm:"column:id;primaryKey;size:191" json:"id" form:"id"`
	Name    string `gorm:"column:name;not null" json:"name" form:"name"`
	Ctime   int64  `gorm:"column:ctime;not null;default:0" json:"ctime" form:"ctime"`
	Mtime   int64  `gorm:"column:mtime;not null;default:0;index" json:"mtime" form:"mtime"`
	Version int64  `gorm:"column:version;not null;default:1" json:"version" form:"version"`
}

// Tag mapped from table <tags>
type Tag Label

// Category mapped from table <categories>
type Category Label
