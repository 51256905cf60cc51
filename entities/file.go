package entities

import (
	"github.com/google/uuid"
	"time"
)

type File struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	OwnerId          uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index:idx_files_owner_id"`
	OriginalFilename string    `json:"original_filename" gorm:"type:varchar(500);not null"`
	MimeType         string    `json:"mime_type" gorm:"type:varchar(255);not null"`
	Size             int64     `json:"size" gorm:"type:bigint;not null;default:0"`
	StoragePath      string    `json:"storage_path" gorm:"type:varchar(1024);not null"`
	CreatedAt        time.Time `json:"created_at" gorm:"type:timestamptz;not null"`

	Jobs []Job `json:"-" gorm:"foreignKey:FileId;constraint:OnDelete:CASCADE"`
}

func (File) TableName() string {
	return "files"
}
