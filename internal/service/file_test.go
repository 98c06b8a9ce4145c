package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/TaskRoom/internal/model"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

func TestResolveMimeType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	pdf := []byte("%PDF-1.7\n")

	tests := []struct {
		name     string
		declared string
		header   []byte
		want     string
		wantErr  error
	}{
		{"declared allowed", "image/jpeg", nil, "image/jpeg", nil},
		{"declared with params", "text/plain; charset=utf-8", nil, "text/plain", nil},
		{"declared not allowed", "application/x-msdownload", png, "", ErrUnsupportedFile},
		{"sniffed png", "", png, "image/png", nil},
		{"sniffed pdf behind octet-stream", "application/octet-stream", pdf, "application/pdf", nil},
		{"sniffed text", "", []byte("just some words"), "text/plain", nil},
		{"sniffed unknown binary", "", []byte{0x7f, 0x00, 0x13, 0x37, 0x00, 0x42, 0x00}, "", ErrUnsupportedFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveMimeType(tt.declared, tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUploadAndOpen(t *testing.T) {
	e := newEnv(t, "u1", "u2")
	ctx := context.Background()
	content := strings.Repeat("chunked content ", 40)

	file, err := e.files.Upload(ctx, "u1", Upload{Filename: "../../etc/notes.txt", Content: strings.NewReader(content)})
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", file.Filename)
	assert.Equal(t, "text/plain", file.MimeType)
	assert.Equal(t, model.FileTypeFile, file.Type)
	assert.EqualValues(t, len(content), file.Length)
	assert.False(t, file.Owned())

	_, rc, err := e.files.Open(ctx, "u1", file.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, string(data))

	_, _, err = e.files.Open(ctx, "u2", file.ID)
	assert.ErrorIs(t, err, ErrForbidden, "unowned files are private to the uploader")

	_, _, err = e.files.Open(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenTaskFileFollowsTaskAccess(t *testing.T) {
	e := newEnv(t, "u1", "u2", "u3")
	ctx := context.Background()
	room := e.room(t, "u1", "u2", "u3")
	task, err := e.tasks.CreateTask(ctx, "u1", CreateTaskInput{
		RoomID:       room.ID,
		Title:        "design review",
		Participants: []string{"u2"},
		Files:        []Upload{{Filename: "img.png", Content: bytes.NewReader([]byte("\x89PNG\r\n\x1a\nrest"))}},
	})
	require.NoError(t, err)
	require.Len(t, task.Files, 1)

	file, _, err := e.files.Open(ctx, "u2", task.Files[0])
	require.NoError(t, err)
	assert.Equal(t, model.FileTypeImage, file.Type)
	assert.Equal(t, model.OwnerTask, file.OwnerType)

	_, _, err = e.files.Open(ctx, "u3", task.Files[0])
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestMetadataFollowsOwnerAccess(t *testing.T) {
	e := newEnv(t, "u1", "u2", "u3")
	ctx := context.Background()
	room := e.room(t, "u1", "u2", "u3")
	task := e.task(t, "u1", room.ID, "", "u2")

	loose := e.upload(t, "u1", "draft")
	file, err := e.files.Metadata(ctx, "u1", loose.ID)
	require.NoError(t, err)
	assert.Equal(t, "note.txt", file.Filename)
	_, err = e.files.Metadata(ctx, "u2", loose.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	attached := e.upload(t, "u1", "price sheet")
	_, msg, err := e.messages.CreateThread(ctx, "u1", task.ChatID, MessageInput{Content: "see file", FileIDs: []string{attached.ID}})
	require.NoError(t, err)

	file, err = e.files.Metadata(ctx, "u2", attached.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OwnerMessage, file.OwnerType)
	assert.Equal(t, msg.ID, file.OwnerID)
	_, err = e.files.Metadata(ctx, "u3", attached.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.files.Metadata(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadEdgeCases(t *testing.T) {
	e := newEnv(t, "u1")
	ctx := context.Background()

	empty, err := e.files.Upload(ctx, "u1", Upload{Filename: "empty.txt", MimeType: "text/plain", Content: strings.NewReader("")})
	require.NoError(t, err)
	assert.Zero(t, empty.Length)
	_, rc, err := e.files.Open(ctx, "u1", empty.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, data)

	small := NewFileService(e.store, e.blobs, e.gate, 100, logger.NewNop())
	before := e.counts(t)
	_, err = small.Upload(ctx, "u1", Upload{Filename: "big.txt", MimeType: "text/plain", Content: strings.NewReader(strings.Repeat("x", 101))})
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, before, e.counts(t), "oversized upload leaves no chunks")

	_, err = e.files.Upload(ctx, "u1", Upload{Filename: "run.exe", MimeType: "application/x-msdownload", Content: strings.NewReader("MZ")})
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}
