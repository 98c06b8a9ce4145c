package blob

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&Chunk{}))
	return db
}

func TestPutOpenRoundTrip(t *testing.T) {
	db := openDB(t)
	s, err := NewStore(16, 0)
	require.NoError(t, err)

	compressible := bytes.Repeat([]byte("taskroom "), 20)
	random := make([]byte, 40)
	_, err = rand.Read(random)
	require.NoError(t, err)

	for name, content := range map[string][]byte{"compressible": compressible, "random": random, "single": []byte("x")} {
		t.Run(name, func(t *testing.T) {
			n, err := s.Put(db, name, bytes.NewReader(content))
			require.NoError(t, err)
			assert.EqualValues(t, len(content), n)

			var chunks int64
			require.NoError(t, db.Model(&Chunk{}).Where("file_id = ?", name).Count(&chunks).Error)
			assert.EqualValues(t, (len(content)+15)/16, chunks)

			rc, err := s.Open(db, name)
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, content, got)
		})
	}
}

func TestCompressionChoice(t *testing.T) {
	s, err := NewStore(DefaultChunkSize, 3)
	require.NoError(t, err)

	c := s.encode("f", 0, bytes.Repeat([]byte{0}, 4096))
	assert.True(t, c.Compressed)
	assert.Less(t, len(c.Data), 4096)

	raw := []byte{1, 2, 3}
	c = s.encode("f", 1, raw)
	assert.False(t, c.Compressed)
	assert.Equal(t, raw, c.Data)
}

func TestDeleteInsideRolledBackTransaction(t *testing.T) {
	db := openDB(t)
	s, err := NewStore(8, 0)
	require.NoError(t, err)

	_, err = s.Put(db, "f1", bytes.NewReader([]byte("hello world, hello world")))
	require.NoError(t, err)

	errRollback := assert.AnError
	err = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, s.Delete(tx, "f1"))
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	rc, err := s.Open(db, "f1")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "hello world, hello world", string(got))

	require.NoError(t, s.Delete(db, "f1"))
	_, err = s.Open(db, "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutEmpty(t *testing.T) {
	db := openDB(t)
	s, err := NewStore(0, 0)
	require.NoError(t, err)

	n, err := s.Put(db, "empty", bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Open(db, "empty")
	assert.ErrorIs(t, err, ErrNotFound)
}
