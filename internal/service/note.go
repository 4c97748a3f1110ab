package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hxnotes/internal/model"
	"hxnotes/internal/repository"
	"hxnotes/internal/storage"
	"hxnotes/internal/validate"
)

// DefaultPageSize is used when a caller passes a non-positive limit.
const DefaultPageSize = 20

// MaxPageSize caps the limit accepted from clients.
const MaxPageSize = 100

// NoteListResult is the service-level DTO for a page of notes.
type NoteListResult struct {
	Items  []model.Note `json:"data"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
	Search string       `json:"search,omitempty"`
}

// HasPrev reports whether a previous page exists.
func (r *NoteListResult) HasPrev() bool { return r.Offset > 0 }

// HasNext reports whether a next page exists.
func (r *NoteListResult) HasNext() bool { return r.Offset+len(r.Items) < r.Total }

// PrevPage returns the 1-based number of the previous page.
func (r *NoteListResult) PrevPage() int { return max(r.Page()-1, 1) }

// NextPage returns the 1-based number of the next page.
func (r *NoteListResult) NextPage() int { return r.Page() + 1 }

// Page returns the 1-based page number of this result.
func (r *NoteListResult) Page() int {
	if r.Limit <= 0 {
		return 1
	}
	return r.Offset/r.Limit + 1
}

// NoteService defines the use cases for notes.
type NoteService interface {
	// List returns notes matching search using limit/offset and a total count.
	List(ctx context.Context, search string, limit, offset int) (*NoteListResult, error)

	// Get returns a single note with its attachments.
	Get(ctx context.Context, id string) (*model.Note, error)

	// Create validates in and stores a new note. Invalid input yields validate.FieldErrors
	// and nothing is persisted.
	Create(ctx context.Context, in model.NoteInput) (*model.Note, error)

	// Update validates in and overwrites title and body of an existing note.
	Update(ctx context.Context, id string, in model.NoteInput) (*model.Note, error)

	// TogglePin flips the pinned flag and returns the updated note.
	TogglePin(ctx context.Context, id string) (*model.Note, error)

	// Delete removes the note's attachment objects, then the note.
	Delete(ctx context.Context, id string) error
}

// noteService is a concrete implementation of NoteService.
type noteService struct {
	notes       repository.NoteRepository
	attachments repository.AttachmentRepository
	store       storage.Storage
	validator   *validate.Validator
	now         func() time.Time
}

// NewNoteService constructs a new NoteService.
func NewNoteService(notes repository.NoteRepository, attachments repository.AttachmentRepository, store storage.Storage) NoteService {
	return &noteService{
		notes:       notes,
		attachments: attachments,
		store:       store,
		validator:   validate.New(),
		now:         time.Now,
	}
}

func normalize(in model.NoteInput) model.NoteInput {
	return model.NoteInput{
		Title: strings.TrimSpace(in.Title),
		Body:  strings.ReplaceAll(in.Body, "\r\n", "\n"),
	}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *noteService) List(ctx context.Context, search string, limit, offset int) (*NoteListResult, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	search = strings.TrimSpace(search)

	res, err := s.notes.List(ctx, repository.NoteQuery{
		Search:    search,
		PageQuery: repository.PageQuery{Limit: limit, Offset: offset},
	})
	if err != nil {
		return nil, err
	}
	return &NoteListResult{Items: res.Items, Total: res.Total, Limit: limit, Offset: offset, Search: search}, nil
}

func (s *noteService) Get(ctx context.Context, id string) (*model.Note, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	n, err := s.notes.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	atts, err := s.attachments.ListByNote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	n.Attachments = atts
	return n, nil
}

func (s *noteService) Create(ctx context.Context, in model.NoteInput) (*model.Note, error) {
	in = normalize(in)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	n := &model.Note{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Body:      in.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, err := s.notes.Create(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

func (s *noteService) Update(ctx context.Context, id string, in model.NoteInput) (*model.Note, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	in = normalize(in)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	n, err := s.notes.Update(ctx, &model.Note{
		ID:        id,
		Title:     in.Title,
		Body:      in.Body,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (s *noteService) TogglePin(ctx context.Context, id string) (*model.Note, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	n, err := s.notes.TogglePinned(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (s *noteService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	if _, err := s.notes.FindByID(ctx, id); err != nil {
		return notFound(err)
	}
	atts, err := s.attachments.ListByNote(ctx, id)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	// Objects go first; if one fails the row stays so the reference is not lost.
	for _, a := range atts {
		if err := s.store.Delete(ctx, a.StoragePath); err != nil {
			return fmt.Errorf("delete storage: %w", err)
		}
	}
	return notFound(s.notes.Delete(ctx, id))
}
