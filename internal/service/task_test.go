package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/pkg/blob"
)

func ptr[T any](v T) *T { return &v }

func TestUpdateTaskParticipants(t *testing.T) {
	e := newEnv(t, "u1", "u2", "u3")
	ctx := context.Background()
	room := e.room(t, "u1", "u2", "u3")
	task := e.task(t, "u1", room.ID, "", "u2")

	updated, err := e.tasks.UpdateTask(ctx, "u1", task.ID, UpdateTaskInput{
		Title:                ptr("ship it"),
		Status:               ptr(model.TaskStatusInProgress),
		ParticipantsToAdd:    []string{"u3", "u3"},
		ParticipantsToRemove: []string{"u2", "ghost"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ship it", updated.Title)
	assert.Equal(t, model.TaskStatusInProgress, updated.Status)
	assert.ElementsMatch(t, []string{"u1", "u3"}, updated.Participants)

	stored := e.loadTask(t, task.ID)
	assert.ElementsMatch(t, []string{"u1", "u3"}, stored.Participants)
	assert.Equal(t, "ship it", stored.Title)

	ev := e.events.last()
	assert.Equal(t, EventTaskUpdated, ev.Type)
	assert.Equal(t, task.ChatID, ev.ChatID)
	assert.Equal(t, []string{"u2"}, ev.Removed, "only former participants are reported")

	_, err = e.tasks.GetTask(ctx, "u2", task.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateTaskRejections(t *testing.T) {
	e := newEnv(t, "u1", "u2")
	ctx := context.Background()
	room := e.room(t, "u1", "u2")
	task := e.task(t, "u1", room.ID, "", "u2")
	loose := e.upload(t, "u1", "not attached")

	tests := []struct {
		name    string
		actor   string
		taskID  string
		in      UpdateTaskInput
		wantErr error
	}{
		{"non moderator", "u2", task.ID, UpdateTaskInput{Title: ptr("x")}, ErrForbidden},
		{"moderator leaves", "u1", task.ID, UpdateTaskInput{ParticipantsToRemove: []string{"u1"}}, ErrInvalidInput},
		{"unknown status", "u1", task.ID, UpdateTaskInput{Status: ptr(model.TaskStatus("blocked"))}, ErrInvalidInput},
		{"empty title", "u1", task.ID, UpdateTaskInput{Title: ptr("")}, ErrInvalidInput},
		{"unregistered participant", "u1", task.ID, UpdateTaskInput{ParticipantsToAdd: []string{"ghost"}}, ErrNotFound},
		{"file not attached", "u1", task.ID, UpdateTaskInput{FileIDsToRemove: []string{loose.ID}}, ErrInvalidInput},
		{"missing task", "u1", "missing", UpdateTaskInput{Title: ptr("x")}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tasks.UpdateTask(ctx, tt.actor, tt.taskID, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	stored := e.loadTask(t, task.ID)
	assert.Equal(t, "task", stored.Title)
	assert.ElementsMatch(t, []string{"u1", "u2"}, stored.Participants)
	assert.True(t, e.exists(t, "files", loose.ID))
}

func TestUpdateTaskFiles(t *testing.T) {
	e := newEnv(t, "u1")
	ctx := context.Background()
	room := e.room(t, "u1")
	task, err := e.tasks.CreateTask(ctx, "u1", CreateTaskInput{
		RoomID: room.ID,
		Title:  "docs",
		Files: []Upload{
			{Filename: "a.txt", Content: bytes.NewReader([]byte("first"))},
			{Filename: "b.txt", Content: bytes.NewReader([]byte("second"))},
		},
	})
	require.NoError(t, err)
	require.Len(t, task.Files, 2)
	dropped, kept := task.Files[0], task.Files[1]

	updated, err := e.tasks.UpdateTask(ctx, "u1", task.ID, UpdateTaskInput{
		FileIDsToRemove: []string{dropped},
		Files:           []Upload{{Filename: "c.txt", Content: bytes.NewReader([]byte("third"))}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Files, 2)
	assert.Equal(t, kept, updated.Files[0])
	added := updated.Files[1]

	assert.False(t, e.exists(t, "files", dropped))
	var chunks int64
	require.NoError(t, e.db.Model(&blob.Chunk{}).Where("file_id = ?", dropped).Count(&chunks).Error)
	assert.Zero(t, chunks)

	report := e.events.last().Report
	require.NotNil(t, report)
	assert.Equal(t, []string{dropped}, report.Files)

	file, err := e.files.Metadata(ctx, "u1", added)
	require.NoError(t, err)
	assert.Equal(t, model.OwnerTask, file.OwnerType)
	assert.Equal(t, task.ID, file.OwnerID)
	assert.Equal(t, []string{kept, added}, e.loadTask(t, task.ID).Files)
}

func TestDeleteTaskWaitsForChatOrdering(t *testing.T) {
	e := newEnv(t, "u1")
	ctx := context.Background()
	room := e.room(t, "u1")
	task := e.task(t, "u1", room.ID, "")

	unlock := e.store.Ordering().Lock(task.ChatID)
	done := make(chan error, 1)
	go func() {
		_, err := e.tasks.DeleteTask(ctx, "u1", task.ID)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("delete committed while the chat was held")
	case <-time.After(100 * time.Millisecond):
	}
	assert.NotContains(t, e.events.types(), EventTaskDeleted)

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("delete never finished")
	}
	assert.Equal(t, EventTaskDeleted, e.events.last().Type)
}

func TestRoomDeleteWaitsForChatPublishers(t *testing.T) {
	e := newEnv(t, "u1")
	ctx := context.Background()
	room := e.room(t, "u1")
	task := e.task(t, "u1", room.ID, "")

	unlock := e.store.Ordering().Lock(task.ChatID)
	done := make(chan error, 1)
	go func() {
		_, err := e.rooms.DeleteRoom(ctx, "u1", room.ID)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("room delete committed while a chat was held")
	case <-time.After(100 * time.Millisecond):
	}

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("room delete never finished")
	}
	assert.False(t, e.exists(t, "rooms", room.ID))
}

func TestUnregisteredActorCreatesTask(t *testing.T) {
	e := newEnv(t)
	room := e.room(t, "u1")
	task := e.task(t, "u1", room.ID, "")
	assert.Equal(t, []string{"u1"}, task.Participants)
}
