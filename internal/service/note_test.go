package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hxnotes/internal/model"
	"hxnotes/internal/repository"
	repoMocks "hxnotes/internal/repository/mocks"
	storeMocks "hxnotes/internal/storage/mocks"
	"hxnotes/internal/validate"
)

type noteMocks struct {
	notes *repoMocks.MockNoteRepository
	atts  *repoMocks.MockAttachmentRepository
	store *storeMocks.MockStorage
}

func newNoteService(t *testing.T) (*noteService, noteMocks) {
	t.Helper()
	m := noteMocks{
		notes: new(repoMocks.MockNoteRepository),
		atts:  new(repoMocks.MockAttachmentRepository),
		store: new(storeMocks.MockStorage),
	}
	svc := NewNoteService(m.notes, m.atts, m.store).(*noteService)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() {
		m.notes.AssertExpectations(t)
		m.atts.AssertExpectations(t)
		m.store.AssertExpectations(t)
	})
	return svc, m
}

func TestNoteService_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		in         model.NoteInput
		setupMocks func(m noteMocks)
		wantFields validate.FieldErrors
		wantErrMsg string
	}{
		{
			name: "happy path trims title and normalizes newlines",
			in:   model.NoteInput{Title: "  Groceries ", Body: "milk\r\neggs"},
			setupMocks: func(m noteMocks) {
				m.notes.On("Create", ctx, mock.MatchedBy(func(n *model.Note) bool {
					return n.ID != "" && n.Title == "Groceries" && n.Body == "milk\neggs" &&
						!n.Pinned && n.CreatedAt.Equal(n.UpdatedAt)
				})).Return(&model.Note{ID: "gen-id", Title: "Groceries"}, nil)
			},
		},
		{
			name:       "validation error persists nothing",
			in:         model.NoteInput{Title: "   "},
			setupMocks: func(m noteMocks) {},
			wantFields: validate.FieldErrors{"title": "title is required"},
		},
		{
			name: "repository error",
			in:   model.NoteInput{Title: "ok"},
			setupMocks: func(m noteMocks) {
				m.notes.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
			},
			wantErrMsg: "db save failed: db fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newNoteService(t)
			tt.setupMocks(m)

			n, err := svc.Create(ctx, tt.in)

			switch {
			case tt.wantFields != nil:
				fe, ok := validate.AsFieldErrors(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantFields, fe)
				assert.Nil(t, n)
			case tt.wantErrMsg != "":
				assert.ErrorContains(t, err, tt.wantErrMsg)
			default:
				assert.NoError(t, err)
				assert.Equal(t, "gen-id", n.ID)
			}
		})
	}
}

func TestNoteService_List(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		search        string
		limit, offset int
		wantQuery     repository.NoteQuery
	}{
		{
			name:      "passes through",
			search:    "milk",
			limit:     10,
			offset:    20,
			wantQuery: repository.NoteQuery{Search: "milk", PageQuery: repository.PageQuery{Limit: 10, Offset: 20}},
		},
		{
			name:      "defaults and trims",
			search:    "  ",
			limit:     0,
			offset:    -5,
			wantQuery: repository.NoteQuery{PageQuery: repository.PageQuery{Limit: DefaultPageSize}},
		},
		{
			name:      "caps limit",
			limit:     1000,
			wantQuery: repository.NoteQuery{PageQuery: repository.PageQuery{Limit: MaxPageSize}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newNoteService(t)
			m.notes.On("List", ctx, tt.wantQuery).
				Return(&repository.PageResult[model.Note]{Items: []model.Note{{ID: "1"}}, Total: 1}, nil)

			res, err := svc.List(ctx, tt.search, tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Total)
			assert.Equal(t, tt.wantQuery.Limit, res.Limit)
		})
	}

	t.Run("repository error", func(t *testing.T) {
		svc, m := newNoteService(t)
		m.notes.On("List", ctx, mock.Anything).Return(nil, errors.New("db fail"))

		_, err := svc.List(ctx, "", 10, 0)
		assert.Error(t, err)
	})
}

func TestNoteListResult_Paging(t *testing.T) {
	r := &NoteListResult{Items: make([]model.Note, 10), Total: 25, Limit: 10, Offset: 10}
	assert.True(t, r.HasPrev())
	assert.True(t, r.HasNext())
	assert.Equal(t, 2, r.Page())

	last := &NoteListResult{Items: make([]model.Note, 5), Total: 25, Limit: 10, Offset: 20}
	assert.False(t, last.HasNext())
	assert.Equal(t, 3, last.Page())

	assert.Equal(t, 1, (&NoteListResult{}).Page())
}

func TestNoteService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("loads attachments", func(t *testing.T) {
		svc, m := newNoteService(t)
		m.notes.On("FindByID", ctx, "n1").Return(&model.Note{ID: "n1"}, nil)
		m.atts.On("ListByNote", ctx, "n1").Return([]model.Attachment{{ID: "a1"}}, nil)

		n, err := svc.Get(ctx, "n1")
		require.NoError(t, err)
		assert.Len(t, n.Attachments, 1)
	})

	t.Run("empty id", func(t *testing.T) {
		svc, _ := newNoteService(t)
		_, err := svc.Get(ctx, "")
		assert.ErrorIs(t, err, ErrIDRequired)
	})

	t.Run("not found - mapping sql.ErrNoRows", func(t *testing.T) {
		svc, m := newNoteService(t)
		m.notes.On("FindByID", ctx, "missing").Return(nil, sql.ErrNoRows)

		_, err := svc.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestNoteService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		svc, m := newNoteService(t)
		m.notes.On("Update", ctx, mock.MatchedBy(func(n *model.Note) bool {
			return n.ID == "n1" && n.Title == "New" && !n.UpdatedAt.IsZero()
		})).Return(&model.Note{ID: "n1", Title: "New"}, nil)

		n, err := svc.Update(ctx, "n1", model.NoteInput{Title: "New"})
		require.NoError(t, err)
		assert.Equal(t, "New", n.Title)
	})

	t.Run("invalid input", func(t *testing.T) {
		svc, _ := newNoteService(t)
		_, err := svc.Update(ctx, "n1", model.NoteInput{Title: strings.Repeat("x", 300)})
		_, ok := validate.AsFieldErrors(err)
		assert.True(t, ok)
	})

	t.Run("missing note", func(t *testing.T) {
		svc, m := newNoteService(t)
		m.notes.On("Update", ctx, mock.Anything).Return(nil, sql.ErrNoRows)

		_, err := svc.Update(ctx, "gone", model.NoteInput{Title: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// memNotes keeps pinned state in memory so toggling can be observed end to end.
type memNotes struct {
	repoMocks.MockNoteRepository
	mu    sync.Mutex
	notes map[string]model.Note
}

func (r *memNotes) TogglePinned(_ context.Context, id string) (*model.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	n.Pinned = !n.Pinned
	r.notes[id] = n
	return &n, nil
}

func TestNoteService_TogglePin(t *testing.T) {
	ctx := context.Background()

	for _, start := range []bool{false, true} {
		repo := &memNotes{notes: map[string]model.Note{"n1": {ID: "n1", Pinned: start}}}
		svc := NewNoteService(repo, nil, nil)

		n, err := svc.TogglePin(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, !start, n.Pinned)

		for i := 0; i < 3; i++ {
			n, err = svc.TogglePin(ctx, "n1")
			require.NoError(t, err)
		}
		assert.Equal(t, start, n.Pinned, "an even number of toggles restores the original state")
	}

	t.Run("missing note", func(t *testing.T) {
		svc := NewNoteService(&memNotes{notes: map[string]model.Note{}}, nil, nil)
		_, err := svc.TogglePin(ctx, "gone")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent toggles are not lost", func(t *testing.T) {
		repo := &memNotes{notes: map[string]model.Note{"n1": {ID: "n1"}}}
		svc := NewNoteService(repo, nil, nil)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.TogglePin(ctx, "n1")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.False(t, repo.notes["n1"].Pinned)
		repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})
}

func TestNoteService_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         string
		setupMocks func(m noteMocks)
		wantErr    error
		wantErrMsg string
	}{
		{
			name: "removes objects then row",
			id:   "n1",
			setupMocks: func(m noteMocks) {
				m.notes.On("FindByID", ctx, "n1").Return(&model.Note{ID: "n1"}, nil)
				m.atts.On("ListByNote", ctx, "n1").Return([]model.Attachment{
					{ID: "a1", StoragePath: "notes/n1/a1.png"},
					{ID: "a2", StoragePath: "notes/n1/a2.pdf"},
				}, nil)
				m.store.On("Delete", ctx, "notes/n1/a1.png").Return(nil)
				m.store.On("Delete", ctx, "notes/n1/a2.pdf").Return(nil)
				m.notes.On("Delete", ctx, "n1").Return(nil)
			},
		},
		{
			name:       "validation - empty id",
			setupMocks: func(m noteMocks) {},
			wantErr:    ErrIDRequired,
		},
		{
			name: "not found",
			id:   "missing",
			setupMocks: func(m noteMocks) {
				m.notes.On("FindByID", ctx, "missing").Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "storage failure keeps the row",
			id:   "n1",
			setupMocks: func(m noteMocks) {
				m.notes.On("FindByID", ctx, "n1").Return(&model.Note{ID: "n1"}, nil)
				m.atts.On("ListByNote", ctx, "n1").Return([]model.Attachment{{ID: "a1", StoragePath: "p"}}, nil)
				m.store.On("Delete", ctx, "p").Return(errors.New("storage fail"))
			},
			wantErrMsg: "delete storage: storage fail",
		},
		{
			name: "row vanished concurrently",
			id:   "n1",
			setupMocks: func(m noteMocks) {
				m.notes.On("FindByID", ctx, "n1").Return(&model.Note{ID: "n1"}, nil)
				m.atts.On("ListByNote", ctx, "n1").Return([]model.Attachment{}, nil)
				m.notes.On("Delete", ctx, "n1").Return(sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newNoteService(t)
			tt.setupMocks(m)

			err := svc.Delete(ctx, tt.id)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrMsg != "":
				assert.ErrorContains(t, err, tt.wantErrMsg)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
