package repository

import (
	"context"

	"hxnotes/internal/model"
)

// NoteQuery filters and pages a note listing.
type NoteQuery struct {
	// Search matches title or body case-insensitively; empty means no filter.
	Search string
	PageQuery
}

// NoteRepository defines data access for notes using SQL queries only.
// No business logic here, strictly persistence operations.
type NoteRepository interface {
	// Create inserts a new note. The caller provides ID and timestamps.
	Create(ctx context.Context, n *model.Note) (*model.Note, error)

	// FindByID returns a note by its ID, or sql.ErrNoRows.
	FindByID(ctx context.Context, id string) (*model.Note, error)

	// List returns a page of notes, pinned first then most recently updated.
	List(ctx context.Context, q NoteQuery) (*PageResult[model.Note], error)

	// Update writes title, body and updated_at. Returns sql.ErrNoRows if the note is missing.
	Update(ctx context.Context, n *model.Note) (*model.Note, error)

	// TogglePinned flips the pinned flag in one statement and returns the stored note.
	// Returns sql.ErrNoRows if the note is missing.
	TogglePinned(ctx context.Context, id string) (*model.Note, error)

	// Delete removes a note. Returns sql.ErrNoRows when nothing was deleted.
	Delete(ctx context.Context, id string) error
}
