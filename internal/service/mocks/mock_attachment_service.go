package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"hxnotes/internal/model"
	"hxnotes/internal/service"
)

type MockAttachmentService struct {
	mock.Mock
}

var _ service.AttachmentService = (*MockAttachmentService)(nil)

func (m *MockAttachmentService) Upload(ctx context.Context, noteID string, r io.Reader, filename, contentType string, size int64) (*model.Attachment, error) {
	args := m.Called(ctx, noteID, r, filename, contentType, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attachment), args.Error(1)
}

func (m *MockAttachmentService) List(ctx context.Context, noteID string) ([]model.Attachment, error) {
	args := m.Called(ctx, noteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Attachment), args.Error(1)
}

func (m *MockAttachmentService) URL(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockAttachmentService) Delete(ctx context.Context, id string) (*model.Attachment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attachment), args.Error(1)
}
