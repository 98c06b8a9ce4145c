package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/pkg/blob"
	"github.com/Gopher0727/TaskRoom/internal/repository"
	"github.com/Gopher0727/TaskRoom/internal/utils"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

const sniffLen = 3072

var allowedMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"video/mp4",
	"video/mpeg",
	"video/webm",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Upload is one file as received from a client.
type Upload struct {
	Filename string
	MimeType string
	Content  io.Reader
}

type IFileService interface {
	Upload(ctx context.Context, actor string, up Upload) (*model.File, error)
	Open(ctx context.Context, actor, fileID string) (*model.File, io.ReadCloser, error)
	Metadata(ctx context.Context, actor, fileID string) (*model.File, error)
}

type FileService struct {
	store   *repository.Store
	blobs   BlobStore
	gate    IAccessGate
	maxSize int64
	logger  *logger.Logger
}

func NewFileService(store *repository.Store, blobs BlobStore, gate IAccessGate, maxSize int64, l *logger.Logger) *FileService {
	return &FileService{store: store, blobs: blobs, gate: gate, maxSize: maxSize, logger: l.Named("files")}
}

// Upload stores an unowned file. It can later be attached to a message by
// the same user.
func (s *FileService) Upload(ctx context.Context, actor string, up Upload) (*model.File, error) {
	var file *model.File
	err := s.store.WithTransaction(ctx, func(ctx context.Context, sc *repository.Scope) error {
		var err error
		file, err = s.put(ctx, sc, actor, up, model.OwnerNone, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.For(ctx).Info("file uploaded",
		zap.String("file_id", file.ID),
		zap.String("mime_type", file.MimeType),
		zap.Int64("length", file.Length),
	)
	return file, nil
}

// put writes content and metadata through sc.
func (s *FileService) put(ctx context.Context, sc *repository.Scope, actor string, up Upload, ownerType model.OwnerType, ownerID string) (*model.File, error) {
	if up.Content == nil {
		return nil, invalid("file %q has no content", up.Filename)
	}
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(up.Content, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	header = header[:n]

	mime, err := resolveMimeType(up.MimeType, header)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	body := &io.LimitedReader{R: io.MultiReader(bytes.NewReader(header), up.Content), N: s.maxSize + 1}
	length, err := s.blobs.Put(sc.DB().WithContext(ctx), id, body)
	if err != nil {
		return nil, err
	}
	if length > s.maxSize {
		return nil, ErrFileTooLarge
	}

	file := &model.File{
		ID:         id,
		Filename:   utils.SanitizeFilename(up.Filename),
		Length:     length,
		Type:       model.FileTypeOf(mime),
		MimeType:   mime,
		UploaderID: actor,
		OwnerType:  ownerType,
		OwnerID:    ownerID,
	}
	if err := sc.Files().Create(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}
	return file, nil
}

// resolveMimeType trusts a declared type when present and sniffs otherwise.
// Either way the result must be on the allow list.
func resolveMimeType(declared string, header []byte) (string, error) {
	declared = strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0]))
	if declared != "" && declared != "application/octet-stream" {
		for _, allowed := range allowedMimeTypes {
			if declared == allowed {
				return allowed, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, declared)
	}

	detected := mimetype.Detect(header)
	for m := detected; m != nil; m = m.Parent() {
		for _, allowed := range allowedMimeTypes {
			if m.Is(allowed) {
				return allowed, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, detected.String())
}

// attach gives unowned files uploaded by actor to an owner. A file that
// already has an owner yields ErrFileOwned.
func (s *FileService) attach(ctx context.Context, sc *repository.Scope, actor string, ids []string, ownerType model.OwnerType, ownerID string) ([]string, error) {
	ids = model.Dedup(ids)
	files, err := sc.Files().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.UploaderID != actor {
			return nil, ErrForbidden
		}
		if f.Owned() {
			return nil, fmt.Errorf("%w: %s", ErrFileOwned, f.ID)
		}
		f.OwnerType = ownerType
		f.OwnerID = ownerID
		if err := sc.Files().Update(ctx, f); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// authorize loads the file metadata. Access is decided by the owner: task
// participants for task and message files, the uploader alone for files not
// yet attached.
func (s *FileService) authorize(ctx context.Context, actor, fileID string) (*model.File, error) {
	file, err := s.store.Current(ctx).Files().FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	switch file.OwnerType {
	case model.OwnerTask:
		_, err = s.gate.AuthorizeTask(ctx, actor, file.OwnerID)
	case model.OwnerMessage:
		_, _, _, err = s.gate.AuthorizeMessage(ctx, actor, file.OwnerID)
	default:
		if file.UploaderID != actor {
			err = ErrForbidden
		}
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (s *FileService) Metadata(ctx context.Context, actor, fileID string) (*model.File, error) {
	return s.authorize(ctx, actor, fileID)
}

// Open returns the file metadata and a reader over its content.
func (s *FileService) Open(ctx context.Context, actor, fileID string) (*model.File, io.ReadCloser, error) {
	file, err := s.authorize(ctx, actor, fileID)
	if err != nil {
		return nil, nil, err
	}

	if file.Length == 0 {
		return file, io.NopCloser(bytes.NewReader(nil)), nil
	}
	rc, err := s.blobs.Open(s.store.Current(ctx).DB().WithContext(ctx), file.ID)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}
