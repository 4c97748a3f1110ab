package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hxnotes/internal/model"
)

var attachmentCols = []string{"id", "note_id", "filename", "storage_path", "size", "content_type", "created_at"}

func TestAttachmentPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAttachmentPostgres(db)
	now := time.Now().UTC()
	a := &model.Attachment{
		ID:          "att-1",
		NoteID:      "note-1",
		Filename:    "photo.png",
		StoragePath: "notes/note-1/abc.png",
		Size:        42,
		ContentType: "image/png",
		CreatedAt:   now,
	}

	mock.ExpectQuery("INSERT INTO attachments").
		WithArgs(a.ID, a.NoteID, a.Filename, a.StoragePath, a.Size, a.ContentType, a.CreatedAt).
		WillReturnRows(sqlmock.NewRows(attachmentCols).
			AddRow(a.ID, a.NoteID, a.Filename, a.StoragePath, a.Size, a.ContentType, a.CreatedAt))

	got, err := repo.Create(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, a.StoragePath, got.StoragePath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAttachmentPostgres(db)

	mock.ExpectQuery("SELECT (.+) FROM attachments WHERE id = ?").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	a, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Nil(t, a)
}

func TestAttachmentPostgres_ListByNote(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAttachmentPostgres(db)

	mock.ExpectQuery("SELECT (.+) FROM attachments WHERE note_id = ?").
		WithArgs("note-1").
		WillReturnRows(sqlmock.NewRows(attachmentCols).
			AddRow("a1", "note-1", "a.txt", "notes/note-1/a.txt", 1, "text/plain", time.Now()).
			AddRow("a2", "note-1", "b.pdf", "notes/note-1/b.pdf", 2, "application/pdf", time.Now()))

	items, err := repo.ListByNote(context.Background(), "note-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentPostgres_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAttachmentPostgres(db)

	mock.ExpectExec("DELETE FROM attachments WHERE id = ?").
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Delete(context.Background(), "a1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
