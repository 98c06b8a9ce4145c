package model

import (
	"time"
)

// User 用户目录条目；账号管理由外部系统负责
type User struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserName    string `gorm:"column:username;uniqueIndex;not null;type:varchar(255)" json:"username"`
	DisplayName string `gorm:"type:varchar(255)" json:"display_name"`
	AvatarURL   string `json:"avatar_url"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Name 优先返回显示名
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.UserName
}
