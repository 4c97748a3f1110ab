package repository

import (
	"context"

	"hxnotes/internal/model"
)

// AttachmentRepository defines data access for note attachments.
type AttachmentRepository interface {
	// Create inserts a new attachment record and returns the stored row.
	Create(ctx context.Context, a *model.Attachment) (*model.Attachment, error)

	// FindByID returns an attachment by its ID, or sql.ErrNoRows.
	FindByID(ctx context.Context, id string) (*model.Attachment, error)

	// ListByNote returns the attachments of a note, oldest first.
	ListByNote(ctx context.Context, noteID string) ([]model.Attachment, error)

	// Delete removes an attachment by ID. It returns nil if the row did not exist.
	Delete(ctx context.Context, id string) error
}
