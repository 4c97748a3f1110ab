package postgres

import (
	"context"
	"database/sql"

	"hxnotes/internal/model"
	"hxnotes/internal/repository"
)

// AttachmentPostgres is a PostgreSQL implementation of repository.AttachmentRepository.
type AttachmentPostgres struct {
	db *sql.DB
}

// NewAttachmentPostgres creates a new AttachmentPostgres repository.
func NewAttachmentPostgres(db *sql.DB) *AttachmentPostgres {
	return &AttachmentPostgres{db: db}
}

var _ repository.AttachmentRepository = (*AttachmentPostgres)(nil)

const attachmentColumns = `id, note_id, filename, storage_path, size, content_type, created_at`

func scanAttachment(s scanner) (*model.Attachment, error) {
	var a model.Attachment
	if err := s.Scan(&a.ID, &a.NoteID, &a.Filename, &a.StoragePath, &a.Size, &a.ContentType, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new attachment row and returns the stored record.
func (r *AttachmentPostgres) Create(ctx context.Context, a *model.Attachment) (*model.Attachment, error) {
	const q = `
		INSERT INTO attachments (id, note_id, filename, storage_path, size, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + attachmentColumns
	row := r.db.QueryRowContext(ctx, q,
		a.ID,
		a.NoteID,
		a.Filename,
		a.StoragePath,
		a.Size,
		a.ContentType,
		a.CreatedAt,
	)
	return scanAttachment(row)
}

// FindByID fetches a single attachment by its ID.
func (r *AttachmentPostgres) FindByID(ctx context.Context, id string) (*model.Attachment, error) {
	const q = `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = $1`
	return scanAttachment(r.db.QueryRowContext(ctx, q, id))
}

// ListByNote returns all attachments of a note ordered by upload time.
func (r *AttachmentPostgres) ListByNote(ctx context.Context, noteID string) ([]model.Attachment, error) {
	const q = `
		SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE note_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, q, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Attachment, 0)
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

// Delete removes an attachment by ID. It does not return an error if the row does not exist.
func (r *AttachmentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM attachments WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
