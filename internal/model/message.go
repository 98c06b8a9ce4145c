package model

import (
	"slices"
	"time"
)

type MessageTag string

const (
	TagQuestion  MessageTag = "question"
	TagImportant MessageTag = "important"
	TagDecision  MessageTag = "decision"
	TagBlocker   MessageTag = "blocker"
)

var knownTags = []MessageTag{TagQuestion, TagImportant, TagDecision, TagBlocker}

func (t MessageTag) Valid() bool {
	return slices.Contains(knownTags, t)
}

// Message 消息模型
type Message struct {
	ID       string       `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ThreadID string       `gorm:"index;not null;type:varchar(64)" json:"thread_id"`
	Sender   string       `gorm:"index;not null;type:varchar(64)" json:"sender"`
	Content  string       `gorm:"type:text;not null" json:"content"`
	Tags     []MessageTag `gorm:"serializer:json;type:text" json:"tags"`
	Files    []string     `gorm:"serializer:json;type:text" json:"files"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}
