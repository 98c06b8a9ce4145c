package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/repository"
	"github.com/Gopher0727/TaskRoom/internal/utils"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

// MessageInput is the body of a new message, either a thread's main message
// or a reply.
type MessageInput struct {
	ThreadID string             `json:"threadId,omitempty"`
	Content  string             `json:"content"`
	Tags     []model.MessageTag `json:"tags,omitempty"`
	FileIDs  []string           `json:"fileIds,omitempty"`
}

// MessageUpdate edits a message in place. Nil fields are left unchanged.
type MessageUpdate struct {
	Content *string            `json:"content,omitempty"`
	Tags    []model.MessageTag `json:"tags,omitempty"`
}

const maxHistoryLimit = 100

// ThreadHistory 话题的主消息与一页回复，Page 从 1 开始
type ThreadHistory struct {
	Thread      *model.Thread    `json:"thread"`
	MainMessage *model.Message   `json:"main_message,omitempty"`
	Replies     []*model.Message `json:"replies"`
	Page        int              `json:"page"`
	Limit       int              `json:"limit"`
	Total       int              `json:"total"`
}

type IMessageService interface {
	CreateThread(ctx context.Context, actor, chatID string, in MessageInput) (*model.Thread, *model.Message, error)
	SendMessage(ctx context.Context, actor, chatID string, in MessageInput) (*model.Message, error)
	UpdateMessage(ctx context.Context, actor, messageID string, up MessageUpdate) (*model.Message, error)
	DeleteMessage(ctx context.Context, actor, messageID string) (*CascadeReport, error)
	UpdateThread(ctx context.Context, actor, threadID string, up MessageUpdate) (*model.Thread, *model.Message, error)
	DeleteThread(ctx context.Context, actor, threadID string) (*CascadeReport, error)
	ThreadHistory(ctx context.Context, actor, threadID string, page, limit int) (*ThreadHistory, error)
}

type MessageService struct {
	store     *repository.Store
	gate      IAccessGate
	cascade   *CascadeCoordinator
	files     *FileService
	publisher EventPublisher
	logger    *logger.Logger
}

func NewMessageService(store *repository.Store, gate IAccessGate, cascade *CascadeCoordinator, files *FileService,
	publisher EventPublisher, l *logger.Logger) *MessageService {
	return &MessageService{
		store:     store,
		gate:      gate,
		cascade:   cascade,
		files:     files,
		publisher: publisher,
		logger:    l.Named("messages"),
	}
}

func validateMessage(content string, tags []model.MessageTag, fileIDs []string) error {
	if !utils.ValidateContent(content) {
		return invalid("message content must be 1-10000 characters")
	}
	for _, tag := range tags {
		if !tag.Valid() {
			return invalid("unknown message tag %q", tag)
		}
	}
	if !utils.ValidateIDs(fileIDs) {
		return invalid("malformed file id")
	}
	return nil
}

// newMessage creates a message in threadID and gives it the referenced files.
func (s *MessageService) newMessage(ctx context.Context, sc *repository.Scope, actor, threadID string, in MessageInput) (*model.Message, error) {
	msg := &model.Message{
		ID:       uuid.NewString(),
		ThreadID: threadID,
		Sender:   actor,
		Content:  in.Content,
		Tags:     dedupTags(in.Tags),
		Files:    []string{},
	}
	if len(in.FileIDs) > 0 {
		ids, err := s.files.attach(ctx, sc, actor, in.FileIDs, model.OwnerMessage, msg.ID)
		if err != nil {
			return nil, err
		}
		msg.Files = ids
	}
	if err := sc.Messages().Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// CreateThread starts a thread in chatID with in as its main message.
func (s *MessageService) CreateThread(ctx context.Context, actor, chatID string, in MessageInput) (*model.Thread, *model.Message, error) {
	if err := validateMessage(in.Content, in.Tags, in.FileIDs); err != nil {
		return nil, nil, err
	}

	var (
		thread *model.Thread
		msg    *model.Message
	)
	err := s.store.WithOrderedTransaction(ctx, []string{chatID}, func(ctx context.Context, sc *repository.Scope) error {
		task, err := s.gate.AuthorizeChat(ctx, actor, chatID)
		if err != nil {
			return err
		}
		chat, err := sc.Chats().FindByID(ctx, chatID)
		if err != nil {
			return err
		}

		thread = &model.Thread{ID: uuid.NewString(), ChatID: chatID, Replies: []string{}}
		if err := sc.Threads().Create(ctx, thread); err != nil {
			return err
		}
		if msg, err = s.newMessage(ctx, sc, actor, thread.ID, in); err != nil {
			return err
		}
		thread.MainMessageID = &msg.ID
		if err := sc.Threads().Update(ctx, thread); err != nil {
			return err
		}
		chat.Threads = model.AddToSet(chat.Threads, thread.ID)
		if err := sc.Chats().Update(ctx, chat); err != nil {
			return err
		}

		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventThreadCreated,
				RoomID:     task.RoomID,
				TaskID:     task.ID,
				ChatID:     chatID,
				ThreadID:   thread.ID,
				Actor:      actor,
				Thread:     thread,
				Message:    msg,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.For(ctx).Debug("thread created", zap.String("chat_id", chatID), zap.String("thread_id", thread.ID))
	return thread, msg, nil
}

// SendMessage appends a reply to in.ThreadID, which must belong to chatID.
func (s *MessageService) SendMessage(ctx context.Context, actor, chatID string, in MessageInput) (*model.Message, error) {
	if !utils.ValidateID(in.ThreadID) {
		return nil, invalid("malformed thread id")
	}
	if err := validateMessage(in.Content, in.Tags, in.FileIDs); err != nil {
		return nil, err
	}

	var msg *model.Message
	err := s.store.WithOrderedTransaction(ctx, []string{chatID}, func(ctx context.Context, sc *repository.Scope) error {
		task, err := s.gate.AuthorizeChat(ctx, actor, chatID)
		if err != nil {
			return err
		}
		thread, err := sc.Threads().FindByID(ctx, in.ThreadID)
		if err != nil {
			return err
		}
		if thread.ChatID != chatID {
			return invalid("thread %s does not belong to chat %s", thread.ID, chatID)
		}

		if msg, err = s.newMessage(ctx, sc, actor, thread.ID, in); err != nil {
			return err
		}
		thread.Replies = append(thread.Replies, msg.ID)
		if err := sc.Threads().Update(ctx, thread); err != nil {
			return err
		}

		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventMessageCreated,
				RoomID:     task.RoomID,
				TaskID:     task.ID,
				ChatID:     chatID,
				ThreadID:   thread.ID,
				Actor:      actor,
				Message:    msg,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func dedupTags(tags []model.MessageTag) []model.MessageTag {
	out := make([]model.MessageTag, 0, len(tags))
	for _, tag := range tags {
		if !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out
}

func applyUpdate(msg *model.Message, up MessageUpdate) error {
	content := msg.Content
	if up.Content != nil {
		content = *up.Content
	}
	if err := validateMessage(content, up.Tags, nil); err != nil {
		return err
	}
	msg.Content = content
	if up.Tags != nil {
		msg.Tags = dedupTags(up.Tags)
	}
	return nil
}

// UpdateMessage 仅作者可编辑
func (s *MessageService) UpdateMessage(ctx context.Context, actor, messageID string, up MessageUpdate) (*model.Message, error) {
	chatID, err := s.messageChat(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var msg *model.Message
	err = s.store.WithOrderedTransaction(ctx, []string{chatID}, func(ctx context.Context, sc *repository.Scope) error {
		var (
			thread *model.Thread
			task   *model.Task
			err    error
		)
		if msg, thread, task, err = s.gate.AuthorizeMessage(ctx, actor, messageID); err != nil {
			return err
		}
		if msg.Sender != actor {
			return ErrForbidden
		}
		if err := applyUpdate(msg, up); err != nil {
			return err
		}
		if err := sc.Messages().Update(ctx, msg); err != nil {
			return err
		}

		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventMessageUpdated,
				RoomID:     task.RoomID,
				TaskID:     task.ID,
				ChatID:     thread.ChatID,
				ThreadID:   thread.ID,
				Actor:      actor,
				Message:    msg,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage 仅作者可删除；删除主消息等同于删除整个话题
func (s *MessageService) DeleteMessage(ctx context.Context, actor, messageID string) (*CascadeReport, error) {
	chatID, err := s.messageChat(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var report *CascadeReport
	err = s.store.WithOrderedTransaction(ctx, []string{chatID}, func(ctx context.Context, sc *repository.Scope) error {
		msg, thread, task, err := s.gate.AuthorizeMessage(ctx, actor, messageID)
		if err != nil {
			return err
		}
		if msg.Sender != actor {
			return ErrForbidden
		}
		if report, err = s.cascade.DeleteMessage(ctx, sc, messageID); err != nil {
			return err
		}

		ev := Event{
			Type:       EventMessageDeleted,
			RoomID:     task.RoomID,
			TaskID:     task.ID,
			ChatID:     thread.ChatID,
			ThreadID:   thread.ID,
			Actor:      actor,
			Message:    msg,
			Report:     report,
			OccurredAt: time.Now(),
		}
		if thread.MainMessage() == msg.ID {
			ev.Type = EventThreadDeleted
			ev.Thread = thread
		}
		sc.AfterCommit(func() { s.publisher.Publish(ctx, ev) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// messageChat 解析消息所在的聊天作为顺序键；消息的归属不会改变
func (s *MessageService) messageChat(ctx context.Context, messageID string) (string, error) {
	sc := s.store.Current(ctx)
	msg, err := sc.Messages().FindByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	thread, err := sc.Threads().FindByID(ctx, msg.ThreadID)
	if err != nil {
		return "", err
	}
	return thread.ChatID, nil
}

// threadByAuthor loads a thread whose main message was written by actor.
func (s *MessageService) threadByAuthor(ctx context.Context, sc *repository.Scope, actor, threadID string) (*model.Thread, *model.Message, *model.Task, error) {
	thread, task, err := s.gate.AuthorizeThread(ctx, actor, threadID)
	if err != nil {
		return nil, nil, nil, err
	}
	if thread.MainMessage() == "" {
		return nil, nil, nil, ErrNotFound
	}
	main, err := sc.Messages().FindByID(ctx, thread.MainMessage())
	if err != nil {
		return nil, nil, nil, err
	}
	if main.Sender != actor {
		return nil, nil, nil, ErrForbidden
	}
	return thread, main, task, nil
}

// UpdateThread edits the thread's main message.
func (s *MessageService) UpdateThread(ctx context.Context, actor, threadID string, up MessageUpdate) (*model.Thread, *model.Message, error) {
	chatID, err := s.gate.ThreadOwnerChat(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}

	var (
		thread *model.Thread
		main   *model.Message
	)
	err = s.store.WithOrderedTransaction(ctx, []string{chatID}, func(ctx context.Context, sc *repository.Scope) error {
		var (
			task *model.Task
			err  error
		)
		if thread, main, task, err = s.threadByAuthor(ctx, sc, actor, threadID); err != nil {
			return err
		}
		if err := applyUpdate(main, up); err != nil {
			return err
		}
		if err := sc.Messages().Update(ctx, main); err != nil {
			return err
		}

		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventThreadUpdated,
				RoomID:     task.RoomID,
				TaskID:     task.ID,
				ChatID:     thread.ChatID,
				ThreadID:   thread.ID,
				Actor:      actor,
				Thread:     thread,
				Message:    main,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return thread, main, nil
}

func (s *MessageService) DeleteThread(ctx context.Context, actor, threadID string) (*CascadeReport, error) {
	chatID, err := s.gate.ThreadOwnerChat(ctx, threadID)
	if err != nil {
		return nil, err
	}

	var report *CascadeReport
	err = s.store.WithOrderedTransaction(ctx, []string{chatID}, func(ctx context.Context, sc *repository.Scope) error {
		thread, _, task, err := s.threadByAuthor(ctx, sc, actor, threadID)
		if err != nil {
			return err
		}
		if report, err = s.cascade.DeleteThread(ctx, sc, threadID); err != nil {
			return err
		}

		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventThreadDeleted,
				RoomID:     task.RoomID,
				TaskID:     task.ID,
				ChatID:     thread.ChatID,
				ThreadID:   thread.ID,
				Actor:      actor,
				Thread:     thread,
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

// ThreadHistory returns the main message and one page of replies in posting
// order. Any participant of the owning task may read it.
func (s *MessageService) ThreadHistory(ctx context.Context, actor, threadID string, page, limit int) (*ThreadHistory, error) {
	if page < 1 || limit < 1 || limit > maxHistoryLimit {
		return nil, invalid("page must be positive and limit within 1-%d", maxHistoryLimit)
	}
	thread, _, err := s.gate.AuthorizeThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}

	sc := s.store.Current(ctx)
	history := &ThreadHistory{
		Thread:  thread,
		Replies: []*model.Message{},
		Page:    page,
		Limit:   limit,
		Total:   len(thread.Replies),
	}
	if id := thread.MainMessage(); id != "" {
		main, err := sc.Messages().FindByID(ctx, id)
		switch {
		case err == nil:
			history.MainMessage = main
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	if pages := (history.Total + limit - 1) / limit; page <= pages {
		start := (page - 1) * limit
		replies, err := sc.Messages().FindByIDs(ctx, thread.Replies[start:min(start+limit, history.Total)])
		if err != nil {
			return nil, err
		}
		history.Replies = replies
	}
	return history, nil
}
