package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDHelpers(t *testing.T) {
	ids := []string{"a", "b", "a", "c"}

	assert.Equal(t, 1, IndexOf(ids, "b"))
	assert.Equal(t, -1, IndexOf(ids, "z"))
	assert.True(t, Contains(ids, "c"))
	assert.Equal(t, []string{"b", "c"}, Remove(ids, "a"))
	assert.Equal(t, []string{"a", "b", "a", "c"}, ids, "Remove must not mutate input")
	assert.Equal(t, []string{"a", "b", "a", "c"}, AddToSet(ids, "b"))
	assert.Equal(t, []string{"a", "b", "a", "c", "d"}, AddToSet(ids, "d"))
	assert.Equal(t, []string{"a", "b", "c"}, Dedup(ids))
	assert.Empty(t, Remove(nil, "x"))
}

func TestFileTypeOf(t *testing.T) {
	assert.Equal(t, FileTypeImage, FileTypeOf("image/png"))
	assert.Equal(t, FileTypeVideo, FileTypeOf("video/mp4"))
	assert.Equal(t, FileTypeFile, FileTypeOf("application/pdf"))
	assert.Equal(t, FileTypeFile, FileTypeOf(""))
}

func TestTaskParent(t *testing.T) {
	var task Task
	assert.Empty(t, task.Parent())

	task.SetParent("p1")
	assert.Equal(t, "p1", task.Parent())

	task.SetParent("")
	assert.Nil(t, task.ParentTaskID)
}

func TestMessageTagValid(t *testing.T) {
	assert.True(t, TagBlocker.Valid())
	assert.False(t, MessageTag("urgent").Valid())
}
