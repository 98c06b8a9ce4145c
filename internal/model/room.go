package model

import "time"

// Room 协作空间，持有顶层任务列表
type Room struct {
	ID           string   `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name         string   `gorm:"not null;type:varchar(255)" json:"name"`
	Moderator    string   `gorm:"index;not null;type:varchar(64)" json:"moderator"`
	Participants []string `gorm:"serializer:json;type:text" json:"participants"`
	Tasks        []string `gorm:"serializer:json;type:text" json:"tasks"`
	Version      int64    `gorm:"not null;default:1" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Room) TableName() string {
	return "rooms"
}

func (r *Room) HasParticipant(userID string) bool {
	return Contains(r.Participants, userID)
}
