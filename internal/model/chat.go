package model

import "time"

// Chat 每个任务恰好拥有一个聊天；TaskID 在同一事务中回填
type Chat struct {
	ID      string   `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskID  *string  `gorm:"uniqueIndex;type:varchar(64)" json:"task_id,omitempty"`
	Threads []string `gorm:"serializer:json;type:text" json:"threads"`
	Version int64    `gorm:"not null;default:1" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Chat) TableName() string {
	return "chats"
}

func (c *Chat) Task() string {
	if c.TaskID == nil {
		return ""
	}
	return *c.TaskID
}

// Thread 话题：一条主消息加若干回复
type Thread struct {
	ID            string   `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ChatID        string   `gorm:"index;not null;type:varchar(64)" json:"chat_id"`
	MainMessageID *string  `gorm:"type:varchar(64)" json:"main_message_id,omitempty"`
	Replies       []string `gorm:"serializer:json;type:text" json:"replies"`
	Version       int64    `gorm:"not null;default:1" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Thread) TableName() string {
	return "threads"
}

func (t *Thread) MainMessage() string {
	if t.MainMessageID == nil {
		return ""
	}
	return *t.MainMessageID
}
