package service

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/repository"
	"github.com/Gopher0727/TaskRoom/internal/utils"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

type CreateTaskInput struct {
	RoomID       string   `json:"room_id" form:"room_id" binding:"required"`
	ParentTaskID string   `json:"parent_task_id" form:"parent_task_id"`
	Title        string   `json:"title" form:"title" binding:"required"`
	Description  string   `json:"description" form:"description"`
	Participants []string `json:"participants" form:"participants"`
	Files        []Upload `json:"-" form:"-"`
}

// UpdateTaskInput 未给出的字段保持不变
type UpdateTaskInput struct {
	Title                *string           `json:"title" form:"title"`
	Description          *string           `json:"description" form:"description"`
	Status               *model.TaskStatus `json:"status" form:"status"`
	ParticipantsToAdd    []string          `json:"participants_to_add" form:"participants_to_add"`
	ParticipantsToRemove []string          `json:"participants_to_remove" form:"participants_to_remove"`
	FileIDsToRemove      []string          `json:"file_ids_to_remove" form:"file_ids_to_remove"`
	Files                []Upload          `json:"-" form:"-"`
}

type ITaskService interface {
	CreateTask(ctx context.Context, actor string, in CreateTaskInput) (*model.Task, error)
	GetTask(ctx context.Context, actor, taskID string) (*model.Task, error)
	UpdateTask(ctx context.Context, actor, taskID string, in UpdateTaskInput) (*model.Task, error)
	DeleteTask(ctx context.Context, actor, taskID string) (*CascadeReport, error)
}

type TaskService struct {
	store     *repository.Store
	gate      IAccessGate
	tree      TaskTree
	cascade   *CascadeCoordinator
	files     *FileService
	directory IUserDirectory
	publisher EventPublisher
	logger    *logger.Logger
}

func NewTaskService(store *repository.Store, gate IAccessGate, cascade *CascadeCoordinator, files *FileService,
	directory IUserDirectory, publisher EventPublisher, l *logger.Logger) *TaskService {
	return &TaskService{
		store:     store,
		gate:      gate,
		cascade:   cascade,
		files:     files,
		directory: directory,
		publisher: publisher,
		logger:    l.Named("tasks"),
	}
}

// CreateTask creates a task together with its chat and uploaded files, and
// links it under its parent or its room. All writes share one transaction.
func (s *TaskService) CreateTask(ctx context.Context, actor string, in CreateTaskInput) (*model.Task, error) {
	if !utils.ValidateName(in.Title) {
		return nil, invalid("task title must be 1-255 characters")
	}
	if !utils.ValidateID(in.RoomID) || (in.ParentTaskID != "" && !utils.ValidateID(in.ParentTaskID)) {
		return nil, invalid("malformed room or parent id")
	}
	participants := model.Dedup(append([]string{actor}, in.Participants...))
	if !utils.ValidateIDs(participants) {
		return nil, invalid("malformed participant id")
	}
	if err := requireUsers(ctx, s.directory, actor, participants); err != nil {
		return nil, err
	}

	var task *model.Task
	err := s.store.WithTransaction(ctx, func(ctx context.Context, sc *repository.Scope) error {
		if _, err := s.gate.AuthorizeRoom(ctx, actor, in.RoomID); err != nil {
			return err
		}

		var parent *model.Task
		if in.ParentTaskID != "" {
			var err error
			if parent, err = s.tree.ValidateParent(ctx, sc, in.RoomID, in.ParentTaskID); err != nil {
				return err
			}
		}

		chat := &model.Chat{ID: uuid.NewString(), Threads: []string{}}
		if err := sc.Chats().Create(ctx, chat); err != nil {
			return err
		}

		task = &model.Task{
			ID:           uuid.NewString(),
			Title:        in.Title,
			Description:  in.Description,
			Status:       model.TaskStatusTodo,
			Moderator:    actor,
			Participants: participants,
			Files:        make([]string, 0, len(in.Files)),
			ChatID:       chat.ID,
			SubTasks:     []string{},
			RoomID:       in.RoomID,
		}
		if parent != nil {
			task.SetParent(parent.ID)
		}
		for _, up := range in.Files {
			file, err := s.files.put(ctx, sc, actor, up, model.OwnerTask, task.ID)
			if err != nil {
				return err
			}
			task.Files = append(task.Files, file.ID)
		}
		if err := sc.Tasks().Create(ctx, task); err != nil {
			return err
		}

		chat.TaskID = &task.ID
		if err := sc.Chats().Update(ctx, chat); err != nil {
			return err
		}
		if err := s.tree.Attach(ctx, sc, task, parent); err != nil {
			return err
		}

		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventTaskCreated,
				RoomID:     task.RoomID,
				TaskID:     task.ID,
				ChatID:     task.ChatID,
				Actor:      actor,
				Task:       task,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.For(ctx).Info("task created",
		zap.String("task_id", task.ID),
		zap.String("room_id", task.RoomID),
		zap.String("parent_task_id", task.Parent()),
		zap.Int("files", len(task.Files)),
	)
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, actor, taskID string) (*model.Task, error) {
	return s.gate.AuthorizeTask(ctx, actor, taskID)
}

// UpdateTask 仅任务主持人可修改。参与者增删、新文件上传与旧文件删除在同一事务中完成，
// 被移出的参与者随事件离开任务聊天
func (s *TaskService) UpdateTask(ctx context.Context, actor, taskID string, in UpdateTaskInput) (*model.Task, error) {
	if in.Title != nil && !utils.ValidateName(*in.Title) {
		return nil, invalid("task title must be 1-255 characters")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, invalid("unknown task status %q", *in.Status)
	}
	toAdd := model.Dedup(in.ParticipantsToAdd)
	toRemove := model.Dedup(in.ParticipantsToRemove)
	dropFiles := model.Dedup(in.FileIDsToRemove)
	if !utils.ValidateIDs(toAdd) || !utils.ValidateIDs(toRemove) || !utils.ValidateIDs(dropFiles) {
		return nil, invalid("malformed participant or file id")
	}
	if err := requireUsers(ctx, s.directory, actor, toAdd); err != nil {
		return nil, err
	}

	current, err := s.gate.AuthorizeTask(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}

	var (
		task    *model.Task
		report  *CascadeReport
		removed []string
	)
	err = s.store.WithOrderedTransaction(ctx, []string{current.ChatID}, func(ctx context.Context, sc *repository.Scope) error {
		var err error
		if task, err = s.gate.AuthorizeTask(ctx, actor, taskID); err != nil {
			return err
		}
		if task.Moderator != actor {
			return ErrForbidden
		}
		if slices.Contains(toRemove, task.Moderator) {
			return invalid("the moderator cannot leave the task")
		}
		for _, id := range dropFiles {
			if !model.Contains(task.Files, id) {
				return invalid("file %s is not attached to the task", id)
			}
		}

		if in.Title != nil {
			task.Title = *in.Title
		}
		if in.Description != nil {
			task.Description = *in.Description
		}
		if in.Status != nil {
			task.Status = *in.Status
		}

		before := slices.Clone(task.Participants)
		for _, id := range toAdd {
			task.Participants = model.AddToSet(task.Participants, id)
		}
		for _, id := range toRemove {
			if model.Contains(before, id) {
				removed = append(removed, id)
			}
			task.Participants = model.Remove(task.Participants, id)
		}

		if len(dropFiles) > 0 {
			if report, err = s.cascade.DeleteFiles(ctx, sc, task.ID, dropFiles); err != nil {
				return err
			}
			for _, id := range dropFiles {
				task.Files = model.Remove(task.Files, id)
			}
		}
		for _, up := range in.Files {
			file, err := s.files.put(ctx, sc, actor, up, model.OwnerTask, task.ID)
			if err != nil {
				return err
			}
			task.Files = append(task.Files, file.ID)
		}

		if err := sc.Tasks().Update(ctx, task); err != nil {
			return err
		}
		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventTaskUpdated,
				RoomID:     task.RoomID,
				TaskID:     task.ID,
				ChatID:     task.ChatID,
				Actor:      actor,
				Task:       task,
				Report:     report,
				Removed:    removed,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.For(ctx).Info("task updated",
		zap.String("task_id", task.ID),
		zap.Strings("removed", removed),
		zap.Int("files", len(task.Files)),
	)
	return task, nil
}

// DeleteTask 仅任务主持人可删除；子任务被提升到原位置。
// 只删除自身的聊天，按该聊天的顺序键提交
func (s *TaskService) DeleteTask(ctx context.Context, actor, taskID string) (*CascadeReport, error) {
	current, err := s.gate.AuthorizeTask(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}

	var (
		task   *model.Task
		report *CascadeReport
	)
	err = s.store.WithOrderedTransaction(ctx, []string{current.ChatID}, func(ctx context.Context, sc *repository.Scope) error {
		var err error
		if task, err = s.gate.AuthorizeTask(ctx, actor, taskID); err != nil {
			return err
		}
		if task.Moderator != actor {
			return ErrForbidden
		}
		if report, err = s.cascade.DeleteTask(ctx, sc, taskID); err != nil {
			return err
		}
		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventTaskDeleted,
				RoomID:     task.RoomID,
				TaskID:     task.ID,
				ChatID:     task.ChatID,
				Actor:      actor,
				Report:     report,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
