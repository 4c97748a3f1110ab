package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"hxnotes/internal/model"
	"hxnotes/internal/repository"
	"hxnotes/internal/storage"
	"hxnotes/internal/validate"
)

// PresignExpiry is how long an attachment download URL stays valid.
const PresignExpiry = 15 * time.Minute

// AttachmentService defines the use cases for note attachments.
type AttachmentService interface {
	// Upload stores the content in object storage, saves metadata to the DB,
	// and removes the object again if the DB save fails.
	Upload(ctx context.Context, noteID string, r io.Reader, filename, contentType string, size int64) (*model.Attachment, error)

	// List returns the attachments of a note.
	List(ctx context.Context, noteID string) ([]model.Attachment, error)

	// URL returns a time-limited download URL for an attachment.
	URL(ctx context.Context, id string) (string, error)

	// Delete removes an attachment from storage and the repository.
	// It returns the removed attachment so callers can refresh the owning note.
	Delete(ctx context.Context, id string) (*model.Attachment, error)
}

type attachmentService struct {
	store       storage.Storage
	notes       repository.NoteRepository
	attachments repository.AttachmentRepository
	maxBytes    int64
	now         func() time.Time
}

// NewAttachmentService constructs a new AttachmentService. maxBytes bounds a single upload.
func NewAttachmentService(store storage.Storage, notes repository.NoteRepository, attachments repository.AttachmentRepository, maxBytes int64) AttachmentService {
	return &attachmentService{
		store:       store,
		notes:       notes,
		attachments: attachments,
		maxBytes:    maxBytes,
		now:         time.Now,
	}
}

// allowedType reports whether contentType may be attached to a note.
func allowedType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "image/") || mt == "application/pdf" || mt == "text/plain"
}

func (s *attachmentService) Upload(ctx context.Context, noteID string, r io.Reader, filename, contentType string, size int64) (*model.Attachment, error) {
	if noteID == "" {
		return nil, ErrIDRequired
	}
	if r == nil {
		return nil, ErrReaderNil
	}
	if !allowedType(contentType) {
		return nil, validate.FieldErrors{"file": "file must be an image, a PDF or plain text"}
	}
	if size > s.maxBytes {
		return nil, validate.FieldErrors{"file": fmt.Sprintf("file must be at most %d bytes", s.maxBytes)}
	}
	if _, err := s.notes.FindByID(ctx, noteID); err != nil {
		return nil, notFound(err)
	}

	id := uuid.NewString()
	key := storage.AttachmentKey(noteID, id, filename)

	objInfo, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        size,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": filename,
			"note-id":           noteID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	a := &model.Attachment{
		ID:          id,
		NoteID:      noteID,
		Filename:    filename,
		StoragePath: objInfo.Key,
		Size:        objInfo.Size,
		ContentType: contentType,
		CreatedAt:   s.now().UTC(),
	}
	stored, err := s.attachments.Create(ctx, a)
	if err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

func (s *attachmentService) List(ctx context.Context, noteID string) ([]model.Attachment, error) {
	if noteID == "" {
		return nil, ErrIDRequired
	}
	return s.attachments.ListByNote(ctx, noteID)
}

func (s *attachmentService) URL(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrIDRequired
	}
	a, err := s.attachments.FindByID(ctx, id)
	if err != nil {
		return "", notFound(err)
	}
	return s.store.PresignGet(ctx, a.StoragePath, PresignExpiry)
}

func (s *attachmentService) Delete(ctx context.Context, id string) (*model.Attachment, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	a, err := s.attachments.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.store.Delete(ctx, a.StoragePath); err != nil {
		return nil, fmt.Errorf("delete storage: %w", err)
	}
	if err := s.attachments.Delete(ctx, id); err != nil {
		return nil, err
	}
	return a, nil
}
