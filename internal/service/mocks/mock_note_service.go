package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"hxnotes/internal/model"
	"hxnotes/internal/service"
)

type MockNoteService struct {
	mock.Mock
}

var _ service.NoteService = (*MockNoteService)(nil)

func (m *MockNoteService) List(ctx context.Context, search string, limit, offset int) (*service.NoteListResult, error) {
	args := m.Called(ctx, search, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.NoteListResult), args.Error(1)
}

func (m *MockNoteService) Get(ctx context.Context, id string) (*model.Note, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Note), args.Error(1)
}

func (m *MockNoteService) Create(ctx context.Context, in model.NoteInput) (*model.Note, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Note), args.Error(1)
}

func (m *MockNoteService) Update(ctx context.Context, id string, in model.NoteInput) (*model.Note, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Note), args.Error(1)
}

func (m *MockNoteService) TogglePin(ctx context.Context, id string) (*model.Note, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Note), args.Error(1)
}

func (m *MockNoteService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
