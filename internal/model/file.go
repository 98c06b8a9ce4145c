package model

import (
	"strings"
	"time"
)

type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
	FileTypeFile  FileType = "file"
)

// FileTypeOf 按 MIME 前缀归类
func FileTypeOf(mimeType string) FileType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return FileTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return FileTypeVideo
	default:
		return FileTypeFile
	}
}

type OwnerType string

const (
	OwnerNone    OwnerType = ""
	OwnerTask    OwnerType = "task"
	OwnerMessage OwnerType = "message"
)

// File 文件元数据，内容以分块形式存放在 file_chunks 表
type File struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Filename   string    `gorm:"not null;type:varchar(255)" json:"filename"`
	Length     int64     `gorm:"not null" json:"length"`
	Type       FileType  `gorm:"not null;type:varchar(16)" json:"type"`
	MimeType   string    `gorm:"not null;type:varchar(128)" json:"mime_type"`
	UploaderID string    `gorm:"index;not null;type:varchar(64)" json:"uploader_id"`
	OwnerType  OwnerType `gorm:"index:idx_file_owner;type:varchar(16)" json:"owner_type,omitempty"`
	OwnerID    string    `gorm:"index:idx_file_owner;type:varchar(64)" json:"owner_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (File) TableName() string {
	return "files"
}

func (f *File) Owned() bool {
	return f.OwnerType != OwnerNone
}
