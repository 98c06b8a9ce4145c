package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/repository"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

// BlobStore holds file contents. Writes and deletes go through the
// transaction handle so they commit or roll back with the metadata.
type BlobStore interface {
	Put(tx *gorm.DB, fileID string, r io.Reader) (int64, error)
	Delete(tx *gorm.DB, fileID string) error
	Open(db *gorm.DB, fileID string) (io.ReadCloser, error)
}

type DeleteState int

const (
	StateRequested DeleteState = iota
	StateValidating
	StateCascading
	StateCommitting
	StateCommitted
	StateAborted
)

func (s DeleteState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateValidating:
		return "validating"
	case StateCascading:
		return "cascading"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DeleteRequest tracks one user-initiated delete through its states.
type DeleteRequest struct {
	Kind    string
	RootID  string
	State   DeleteState
	History []DeleteState
}

// CascadeReport lists everything a delete removed or moved.
type CascadeReport struct {
	Tasks    []string `json:"tasks,omitempty"`
	Promoted []string `json:"promoted,omitempty"`
	Chats    []string `json:"chats,omitempty"`
	Threads  []string `json:"threads,omitempty"`
	Messages []string `json:"messages,omitempty"`
	Files    []string `json:"files,omitempty"`
}

// CascadeCoordinator performs multi-entity deletes. Every entry point requires
// a transaction scope and never opens one itself.
type CascadeCoordinator struct {
	tree    TaskTree
	blobs   BlobStore
	logger  *logger.Logger
	observe func(DeleteRequest)
}

func NewCascadeCoordinator(blobs BlobStore, l *logger.Logger) *CascadeCoordinator {
	return &CascadeCoordinator{blobs: blobs, logger: l.Named("cascade")}
}

func (c *CascadeCoordinator) advance(ctx context.Context, req *DeleteRequest, next DeleteState) {
	req.State = next
	req.History = append(req.History, next)
	c.logger.For(ctx).Debug("delete request transition",
		zap.String("kind", req.Kind),
		zap.String("id", req.RootID),
		zap.Stringer("state", next),
	)
	if c.observe != nil {
		c.observe(*req)
	}
}

func (c *CascadeCoordinator) run(ctx context.Context, sc *repository.Scope, kind, id string,
	validate func() error, cascade func(*CascadeReport) error) (*CascadeReport, error) {
	req := &DeleteRequest{Kind: kind, RootID: id}
	c.advance(ctx, req, StateRequested)

	if !sc.InTransaction() {
		c.logger.ViolationContext(ctx, "cascade invoked outside a transaction scope",
			zap.String("kind", kind), zap.String("id", id))
		c.advance(ctx, req, StateAborted)
		return nil, ErrSessionRequired
	}

	c.advance(ctx, req, StateValidating)
	if err := validate(); err != nil {
		c.advance(ctx, req, StateAborted)
		return nil, err
	}

	c.advance(ctx, req, StateCascading)
	report := &CascadeReport{}
	if err := cascade(report); err != nil {
		c.advance(ctx, req, StateAborted)
		c.logger.For(ctx).Warn("cascade aborted", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
		return nil, &TransactionAbortedError{Op: "delete " + kind, Err: err}
	}

	c.advance(ctx, req, StateCommitting)
	sc.AfterRollback(func() {
		c.advance(ctx, req, StateAborted)
		c.logger.For(ctx).Warn("cascade rolled back with its transaction", zap.String("kind", kind), zap.String("id", id))
	})
	sc.AfterCommit(func() {
		c.advance(ctx, req, StateCommitted)
		c.logger.For(ctx).Info("cascade committed",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.Int("tasks", len(report.Tasks)),
			zap.Int("threads", len(report.Threads)),
			zap.Int("messages", len(report.Messages)),
			zap.Int("files", len(report.Files)),
		)
	})
	return report, nil
}

// DeleteTask detaches the task from the tree, promoting its children, then
// removes its files, its chat and the task itself.
func (c *CascadeCoordinator) DeleteTask(ctx context.Context, sc *repository.Scope, taskID string) (*CascadeReport, error) {
	var task *model.Task
	return c.run(ctx, sc, "task", taskID,
		func() (err error) {
			task, err = sc.Tasks().FindByID(ctx, taskID)
			return err
		},
		func(r *CascadeReport) error {
			promoted, err := c.tree.Detach(ctx, sc, task)
			if err != nil {
				return err
			}
			r.Promoted = promoted
			return c.purgeTask(ctx, sc, task, r)
		})
}

// DeleteChat removes every thread of the chat and the chat itself.
func (c *CascadeCoordinator) DeleteChat(ctx context.Context, sc *repository.Scope, chatID string) (*CascadeReport, error) {
	var chat *model.Chat
	return c.run(ctx, sc, "chat", chatID,
		func() (err error) {
			chat, err = sc.Chats().FindByID(ctx, chatID)
			return err
		},
		func(r *CascadeReport) error {
			return c.purgeChat(ctx, sc, chat, r)
		})
}

// DeleteThread removes the thread with all of its messages and pulls it from
// the chat's thread list.
func (c *CascadeCoordinator) DeleteThread(ctx context.Context, sc *repository.Scope, threadID string) (*CascadeReport, error) {
	var thread *model.Thread
	return c.run(ctx, sc, "thread", threadID,
		func() (err error) {
			thread, err = sc.Threads().FindByID(ctx, threadID)
			return err
		},
		func(r *CascadeReport) error {
			return c.purgeThread(ctx, sc, thread, r, true)
		})
}

// DeleteMessage removes a reply and its files. Deleting a thread's main
// message removes the whole thread.
func (c *CascadeCoordinator) DeleteMessage(ctx context.Context, sc *repository.Scope, messageID string) (*CascadeReport, error) {
	var (
		msg    *model.Message
		thread *model.Thread
	)
	return c.run(ctx, sc, "message", messageID,
		func() (err error) {
			if msg, err = sc.Messages().FindByID(ctx, messageID); err != nil {
				return err
			}
			thread, err = sc.Threads().FindByID(ctx, msg.ThreadID)
			return err
		},
		func(r *CascadeReport) error {
			if thread.MainMessage() == msg.ID {
				return c.purgeThread(ctx, sc, thread, r, true)
			}
			if err := c.purgeMessage(ctx, sc, msg, r); err != nil {
				return err
			}
			thread.Replies = model.Remove(thread.Replies, msg.ID)
			return sc.Threads().Update(ctx, thread)
		})
}

// DeleteRoom removes every task of the room at any depth, then the room.
func (c *CascadeCoordinator) DeleteRoom(ctx context.Context, sc *repository.Scope, roomID string) (*CascadeReport, error) {
	var room *model.Room
	return c.run(ctx, sc, "room", roomID,
		func() (err error) {
			room, err = sc.Rooms().FindByID(ctx, roomID)
			return err
		},
		func(r *CascadeReport) error {
			tasks, err := sc.Tasks().FindByRoom(ctx, room.ID)
			if err != nil {
				return err
			}
			for _, task := range tasks {
				if err := c.purgeTask(ctx, sc, task, r); err != nil {
					return err
				}
			}
			return sc.Rooms().Delete(ctx, room.ID)
		})
}

// DeleteFiles removes files attached to ownerID together with their blobs.
// Every file must currently belong to that owner.
func (c *CascadeCoordinator) DeleteFiles(ctx context.Context, sc *repository.Scope, ownerID string, fileIDs []string) (*CascadeReport, error) {
	return c.run(ctx, sc, "files", ownerID,
		func() error {
			files, err := sc.Files().FindByIDs(ctx, fileIDs)
			if err != nil {
				return err
			}
			for _, f := range files {
				if f.OwnerID != ownerID {
					return fmt.Errorf("%w: file %s is not attached to %s", ErrInvalidInput, f.ID, ownerID)
				}
			}
			return nil
		},
		func(r *CascadeReport) error {
			for _, id := range fileIDs {
				if err := c.purgeFile(ctx, sc, id, r); err != nil {
					return err
				}
			}
			return nil
		})
}

func (c *CascadeCoordinator) purgeTask(ctx context.Context, sc *repository.Scope, task *model.Task, r *CascadeReport) error {
	for _, fileID := range task.Files {
		if err := c.purgeFile(ctx, sc, fileID, r); err != nil {
			return err
		}
	}

	chat, err := sc.Chats().FindByID(ctx, task.ChatID)
	switch {
	case err == nil:
		if err := c.purgeChat(ctx, sc, chat, r); err != nil {
			return err
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if err := sc.Tasks().Delete(ctx, task.ID); err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}
	r.Tasks = append(r.Tasks, task.ID)
	return nil
}

func (c *CascadeCoordinator) purgeChat(ctx context.Context, sc *repository.Scope, chat *model.Chat, r *CascadeReport) error {
	referencing, err := sc.Threads().FindByChat(ctx, chat.ID)
	if err != nil {
		return err
	}
	loaded := make(map[string]*model.Thread, len(referencing))
	for _, t := range referencing {
		loaded[t.ID] = t
	}

	ids := model.Dedup(append(append([]string{}, chat.Threads...), threadIDs(referencing)...))
	for _, id := range ids {
		thread, ok := loaded[id]
		if !ok {
			thread, err = sc.Threads().FindByID(ctx, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
		}
		if err := c.purgeThread(ctx, sc, thread, r, false); err != nil {
			return err
		}
	}

	if err := sc.Chats().Delete(ctx, chat.ID); err != nil {
		return fmt.Errorf("chat %s: %w", chat.ID, err)
	}
	r.Chats = append(r.Chats, chat.ID)
	return nil
}

func (c *CascadeCoordinator) purgeThread(ctx context.Context, sc *repository.Scope, thread *model.Thread, r *CascadeReport, pull bool) error {
	owned, err := sc.Messages().FindByThread(ctx, thread.ID)
	if err != nil {
		return err
	}
	loaded := make(map[string]*model.Message, len(owned))
	for _, m := range owned {
		loaded[m.ID] = m
	}

	ids := make([]string, 0, len(thread.Replies)+len(owned)+1)
	if main := thread.MainMessage(); main != "" {
		ids = append(ids, main)
	}
	ids = append(ids, thread.Replies...)
	ids = model.Dedup(append(ids, messageIDs(owned)...))

	for _, id := range ids {
		msg, ok := loaded[id]
		if !ok {
			msg, err = sc.Messages().FindByID(ctx, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
		}
		if err := c.purgeMessage(ctx, sc, msg, r); err != nil {
			return err
		}
	}

	if err := sc.Threads().Delete(ctx, thread.ID); err != nil {
		return fmt.Errorf("thread %s: %w", thread.ID, err)
	}
	r.Threads = append(r.Threads, thread.ID)

	if !pull {
		return nil
	}
	chat, err := sc.Chats().FindByID(ctx, thread.ChatID)
	if err != nil {
		return fmt.Errorf("chat %s: %w", thread.ChatID, err)
	}
	chat.Threads = model.Remove(chat.Threads, thread.ID)
	return sc.Chats().Update(ctx, chat)
}

func (c *CascadeCoordinator) purgeMessage(ctx context.Context, sc *repository.Scope, msg *model.Message, r *CascadeReport) error {
	for _, fileID := range msg.Files {
		if err := c.purgeFile(ctx, sc, fileID, r); err != nil {
			return err
		}
	}
	if err := sc.Messages().Delete(ctx, msg.ID); err != nil {
		return fmt.Errorf("message %s: %w", msg.ID, err)
	}
	r.Messages = append(r.Messages, msg.ID)
	return nil
}

// purgeFile deletes blob chunks and metadata; a file already gone is skipped.
func (c *CascadeCoordinator) purgeFile(ctx context.Context, sc *repository.Scope, fileID string, r *CascadeReport) error {
	if err := c.blobs.Delete(sc.DB().WithContext(ctx), fileID); err != nil {
		return err
	}
	err := sc.Files().Delete(ctx, fileID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("file %s: %w", fileID, err)
	}
	r.Files = append(r.Files, fileID)
	return nil
}

func threadIDs(threads []*model.Thread) []string {
	out := make([]string, 0, len(threads))
	for _, t := range threads {
		out = append(out, t.ID)
	}
	return out
}

func messageIDs(msgs []*model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
