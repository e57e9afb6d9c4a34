package model

import (
	"gorm.io/gorm"
)

// Tables every collection in migration order
// Tables 按迁移顺序排列的全部表模型
func Tables() []any {
	return []any{
		&Note{},
		&Tag{},
		&Category{},
		&NoteTag{},
		&NoteCategory{},
	}
}

// AutoMigrate creates or updates the table of the named model, or every table when key is empty
// AutoMigrate 迁移指定模型对应的表，key 为空时迁移全部表
func AutoMigrate(db *gorm.DB, key string) error {
	switch key {
	case "":
		return db.AutoMigrate(Tables()...)
	case "Note":
		return db.AutoMigrate(&Note{})
	case "Tag":
		return db.AutoMigrate(&Tag{})
	case "Category":
		return db.AutoMigrate(&Category{})
	case "NoteTag":
		return db.AutoMigrate(&NoteTag{})
	case "NoteCategory":
		return db.AutoMigrate(&NoteCategory{})
	}
	return nil
}
