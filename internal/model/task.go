package model

import "time"

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task 任务节点；ParentTaskID 为空表示房间顶层任务
type Task struct {
	ID           string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title        string     `gorm:"not null;type:varchar(255)" json:"title"`
	Description  string     `gorm:"type:text" json:"description"`
	Status       TaskStatus `gorm:"not null;type:varchar(32);default:todo" json:"status"`
	Moderator    string     `gorm:"index;not null;type:varchar(64)" json:"moderator"`
	Participants []string   `gorm:"serializer:json;type:text" json:"participants"`
	Files        []string   `gorm:"serializer:json;type:text" json:"files"`
	ChatID       string     `gorm:"uniqueIndex;not null;type:varchar(64)" json:"chat_id"`
	ParentTaskID *string    `gorm:"index;type:varchar(64)" json:"parent_task_id,omitempty"`
	SubTasks     []string   `gorm:"serializer:json;type:text" json:"sub_tasks"`
	RoomID       string     `gorm:"index;not null;type:varchar(64)" json:"room_id"`
	Version      int64      `gorm:"not null;default:1" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) HasParticipant(userID string) bool {
	return Contains(t.Participants, userID)
}

// Parent 返回父任务 ID，顶层任务返回空串
func (t *Task) Parent() string {
	if t.ParentTaskID == nil {
		return ""
	}
	return *t.ParentTaskID
}

func (t *Task) SetParent(id string) {
	if id == "" {
		t.ParentTaskID = nil
		return
	}
	t.ParentTaskID = &id
}
