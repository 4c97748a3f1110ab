package postgres

import (
	"context"
	"database/sql"
	"strings"

	"hxnotes/internal/model"
	"hxnotes/internal/repository"
)

// NotePostgres is a PostgreSQL implementation of repository.NoteRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type NotePostgres struct {
	db *sql.DB
}

// NewNotePostgres creates a new NotePostgres repository.
func NewNotePostgres(db *sql.DB) *NotePostgres {
	return &NotePostgres{db: db}
}

var _ repository.NoteRepository = (*NotePostgres)(nil)

const noteColumns = `id, title, body, pinned, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*model.Note, error) {
	var n model.Note
	if err := s.Scan(&n.ID, &n.Title, &n.Body, &n.Pinned, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// Create inserts a new note row and returns the stored record.
func (r *NotePostgres) Create(ctx context.Context, n *model.Note) (*model.Note, error) {
	const q = `
		INSERT INTO notes (id, title, body, pinned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + noteColumns
	row := r.db.QueryRowContext(ctx, q, n.ID, n.Title, n.Body, n.Pinned, n.CreatedAt, n.UpdatedAt)
	return scanNote(row)
}

// FindByID fetches a single note by its ID.
func (r *NotePostgres) FindByID(ctx context.Context, id string) (*model.Note, error) {
	const q = `SELECT ` + noteColumns + ` FROM notes WHERE id = $1`
	return scanNote(r.db.QueryRowContext(ctx, q, id))
}

// likePattern escapes LIKE metacharacters so the search term matches literally.
func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

// List returns notes using LIMIT/OFFSET pagination and a total count.
func (r *NotePostgres) List(ctx context.Context, nq repository.NoteQuery) (*repository.PageResult[model.Note], error) {
	search := strings.TrimSpace(nq.Search)
	pattern := likePattern(search)

	const qCount = `
		SELECT COUNT(*) FROM notes
		WHERE $1 = '' OR title ILIKE $2 OR body ILIKE $2
	`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, search, pattern).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE $1 = '' OR title ILIKE $2 OR body ILIKE $2
		ORDER BY pinned DESC, updated_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, qList, search, pattern, nq.Limit, nq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Note]{Items: items, Total: total}, nil
}

// Update writes the editable fields. A missing row surfaces as sql.ErrNoRows.
func (r *NotePostgres) Update(ctx context.Context, n *model.Note) (*model.Note, error) {
	const q = `
		UPDATE notes SET title = $2, body = $3, updated_at = $4
		WHERE id = $1
		RETURNING ` + noteColumns
	return scanNote(r.db.QueryRowContext(ctx, q, n.ID, n.Title, n.Body, n.UpdatedAt))
}

// TogglePinned flips the pinned flag without touching updated_at. The row lock
// taken by UPDATE serialises concurrent toggles.
func (r *NotePostgres) TogglePinned(ctx context.Context, id string) (*model.Note, error) {
	const q = `UPDATE notes SET pinned = NOT pinned WHERE id = $1 RETURNING ` + noteColumns
	return scanNote(r.db.QueryRowContext(ctx, q, id))
}

// Delete removes a note by ID. Attachment rows go with it through ON DELETE CASCADE.
func (r *NotePostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM notes WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
