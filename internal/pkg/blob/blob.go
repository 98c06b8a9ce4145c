// Package blob stores file contents as ordered, zstd-compressed chunks in the
// relational store, so content writes and deletes join the caller's transaction.
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"gorm.io/gorm"
)

const DefaultChunkSize = 255 * 1024

var ErrNotFound = errors.New("blob not found")

// Chunk is one slice of a file's content. Data holds zstd output when
// Compressed is set and the raw bytes otherwise.
type Chunk struct {
	FileID     string `gorm:"primaryKey;type:varchar(64)"`
	N          int    `gorm:"primaryKey;autoIncrement:false"`
	Size       int    `gorm:"not null"`
	Compressed bool   `gorm:"not null"`
	Data       []byte `gorm:"not null"`
}

func (Chunk) TableName() string {
	return "file_chunks"
}

type Store struct {
	chunkSize int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

// NewStore creates a chunk store. level follows zstd.EncoderLevelFromZstd;
// values <= 0 select the default speed.
func NewStore(chunkSize, level int) (*Store, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	encLevel := zstd.SpeedDefault
	if level > 0 {
		encLevel = zstd.EncoderLevelFromZstd(level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init zstd decoder: %w", err)
	}
	return &Store{chunkSize: chunkSize, enc: enc, dec: dec}, nil
}

// Put streams r into chunks owned by fileID and returns the number of bytes read.
func (s *Store) Put(tx *gorm.DB, fileID string, r io.Reader) (int64, error) {
	buf := make([]byte, s.chunkSize)
	var total int64
	for n := 0; ; n++ {
		read, err := io.ReadFull(r, buf)
		if read > 0 {
			if err := tx.Create(s.encode(fileID, n, buf[:read])).Error; err != nil {
				return total, fmt.Errorf("failed to write chunk %d: %w", n, err)
			}
			total += int64(read)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("failed to read content: %w", err)
		}
	}
}

func (s *Store) encode(fileID string, n int, data []byte) *Chunk {
	c := &Chunk{FileID: fileID, N: n, Size: len(data)}
	if packed := s.enc.EncodeAll(data, nil); len(packed) < len(data) {
		c.Data = packed
		c.Compressed = true
		return c
	}
	c.Data = bytes.Clone(data)
	return c
}

func (s *Store) decode(c *Chunk) ([]byte, error) {
	if !c.Compressed {
		return c.Data, nil
	}
	out, err := s.dec.DecodeAll(c.Data, make([]byte, 0, c.Size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress chunk %d: %w", c.N, err)
	}
	if len(out) != c.Size {
		return nil, fmt.Errorf("zstd decompress chunk %d: got %d bytes, expected %d", c.N, len(out), c.Size)
	}
	return out, nil
}

// Delete removes every chunk of fileID.
func (s *Store) Delete(tx *gorm.DB, fileID string) error {
	if err := tx.Where("file_id = ?", fileID).Delete(&Chunk{}).Error; err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", fileID, err)
	}
	return nil
}

// Open returns a reader over the file's content. Chunks are fetched one at a
// time as the reader advances.
func (s *Store) Open(db *gorm.DB, fileID string) (io.ReadCloser, error) {
	var count int64
	if err := db.Model(&Chunk{}).Where("file_id = ?", fileID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return &reader{store: s, db: db, fileID: fileID, chunks: int(count)}, nil
}

type reader struct {
	store  *Store
	db     *gorm.DB
	fileID string
	chunks int
	next   int
	cur    []byte
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		if r.next >= r.chunks {
			return 0, io.EOF
		}
		var c Chunk
		if err := r.db.Where("file_id = ? AND n = ?", r.fileID, r.next).First(&c).Error; err != nil {
			return 0, fmt.Errorf("failed to load chunk %d: %w", r.next, err)
		}
		data, err := r.store.decode(&c)
		if err != nil {
			return 0, err
		}
		r.cur = data
		r.next++
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

func (r *reader) Close() error {
	r.cur = nil
	r.next = r.chunks
	return nil
}
