package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/TaskRoom/internal/model"
)

func TestTaskQueries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tasks := s.Reader().Tasks()

	root := &model.Task{ID: "t1", Title: "root", Moderator: "u1", ChatID: "c1", RoomID: "r1", Status: model.TaskStatusTodo}
	child := &model.Task{ID: "t2", Title: "child", Moderator: "u1", ChatID: "c2", RoomID: "r1", Status: model.TaskStatusTodo}
	child.SetParent("t1")
	other := &model.Task{ID: "t3", Title: "other", Moderator: "u1", ChatID: "c3", RoomID: "r2", Status: model.TaskStatusTodo}
	for _, task := range []*model.Task{root, child, other} {
		require.NoError(t, tasks.Create(ctx, task))
	}

	inRoom, err := tasks.FindByRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, inRoom, 2)

	children, err := tasks.FindChildren(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "t2", children[0].ID)
	assert.Equal(t, "t1", children[0].Parent())

	got, err := tasks.FindByID(ctx, "t2")
	require.NoError(t, err)
	got.SetParent("")
	require.NoError(t, tasks.Update(ctx, got))

	got, err = tasks.FindByID(ctx, "t2")
	require.NoError(t, err)
	assert.Nil(t, got.ParentTaskID)
}

func TestFileFindByIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	files := s.Reader().Files()

	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, files.Create(ctx, &model.File{ID: id, Filename: id, Type: model.FileTypeFile, MimeType: "text/plain", UploaderID: "u1"}))
	}

	got, err := files.FindByIDs(ctx, []string{"f3", "f1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "f3", got[0].ID)
	assert.Equal(t, "f1", got[1].ID)

	_, err = files.FindByIDs(ctx, []string{"f1", "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = files.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMessagesByThread(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	messages := s.Reader().Messages()

	require.NoError(t, messages.Create(ctx, &model.Message{ID: "m1", ThreadID: "th1", Sender: "u1", Content: "a"}))
	require.NoError(t, messages.Create(ctx, &model.Message{ID: "m2", ThreadID: "th1", Sender: "u2", Content: "b", Tags: []model.MessageTag{model.TagQuestion}}))
	require.NoError(t, messages.Create(ctx, &model.Message{ID: "m3", ThreadID: "th2", Sender: "u1", Content: "c"}))

	got, err := messages.FindByThread(ctx, "th1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []model.MessageTag{model.TagQuestion}, got[1].Tags)

	got, err = messages.FindByIDs(ctx, []string{"m3", "gone", "m1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].ID)
	assert.Equal(t, "m1", got[1].ID)
}

func TestUserMissing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	users := s.Reader().Users()

	require.NoError(t, users.Create(ctx, &model.User{ID: "u1", UserName: "alice"}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "u2", UserName: "bob"}))

	missing, err := users.Missing(ctx, []string{"u1", "x", "u2", "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, missing)

	missing, err = users.Missing(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
