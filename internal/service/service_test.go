package service

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/pkg/blob"
	"github.com/Gopher0727/TaskRoom/internal/repository"
	"github.com/Gopher0727/TaskRoom/internal/testutil"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

var graphTables = []string{"rooms", "tasks", "chats", "threads", "messages", "files", "file_chunks"}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type env struct {
	db       *gorm.DB
	store    *repository.Store
	blobs    *blob.Store
	gate     *AccessGate
	cascade  *CascadeCoordinator
	files    *FileService
	rooms    *RoomService
	tasks    *TaskService
	messages *MessageService
	events   *recorder
}

func newEnv(t testing.TB, users ...string) *env {
	t.Helper()
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	blobs, err := blob.NewStore(64, 1)
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range users {
		require.NoError(t, store.Reader().Users().Create(ctx, &model.User{ID: id, UserName: id}))
	}

	l := logger.NewNop()
	events := &recorder{}
	gate := NewAccessGate(store)
	directory := NewUserDirectory(store, nil, 0, l)
	cascade := NewCascadeCoordinator(blobs, l)
	files := NewFileService(store, blobs, gate, 1<<20, l)
	return &env{
		db:       db,
		store:    store,
		blobs:    blobs,
		gate:     gate,
		cascade:  cascade,
		files:    files,
		rooms:    NewRoomService(store, gate, cascade, directory, events, l),
		tasks:    NewTaskService(store, gate, cascade, files, directory, events, l),
		messages: NewMessageService(store, gate, cascade, files, events, l),
		events:   events,
	}
}

func (e *env) room(t testing.TB, moderator string, participants ...string) *model.Room {
	t.Helper()
	room, err := e.rooms.CreateRoom(context.Background(), moderator, CreateRoomInput{Name: "room", Participants: participants})
	require.NoError(t, err)
	return room
}

func (e *env) task(t testing.TB, actor, roomID, parentID string, participants ...string) *model.Task {
	t.Helper()
	task, err := e.tasks.CreateTask(context.Background(), actor, CreateTaskInput{
		RoomID:       roomID,
		ParentTaskID: parentID,
		Title:        "task",
		Participants: participants,
	})
	require.NoError(t, err)
	return task
}

func (e *env) upload(t testing.TB, actor, content string) *model.File {
	t.Helper()
	file, err := e.files.Upload(context.Background(), actor, Upload{
		Filename: "note.txt",
		MimeType: "text/plain",
		Content:  bytes.NewReader([]byte(content)),
	})
	require.NoError(t, err)
	return file
}

func (e *env) loadTask(t testing.TB, id string) *model.Task {
	t.Helper()
	task, err := e.store.Reader().Tasks().FindByID(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (e *env) loadRoom(t testing.TB, id string) *model.Room {
	t.Helper()
	room, err := e.store.Reader().Rooms().FindByID(context.Background(), id)
	require.NoError(t, err)
	return room
}

func (e *env) exists(t testing.TB, table, id string) bool {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Table(table).Where("id = ?", id).Count(&n).Error)
	return n > 0
}

func (e *env) counts(t testing.TB) map[string]int64 {
	return testutil.CountRows(t, e.db, graphTables...)
}

func (e *env) loadTaskIn(t testing.TB, sc *repository.Scope, id string) *model.Task {
	t.Helper()
	task, err := sc.Tasks().FindByID(context.Background(), id)
	require.NoError(t, err)
	return task
}
