package mocks

import (
	"context"
	"io"

	"deserlab/internal/model"
	"deserlab/internal/service"
	"deserlab/internal/storage"
	"github.com/stretchr/testify/mock"
)

type MockLessonService struct {
	mock.Mock
}

var _ service.LessonService = (*MockLessonService)(nil)

func (m *MockLessonService) Check(ctx context.Context, sub service.Submission) model.AttackResult {
	args := m.Called(ctx, sub)
	return args.Get(0).(model.AttackResult)
}

func (m *MockLessonService) Progress(ctx context.Context, userID string) (*model.Progress, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Progress), args.Error(1)
}

func (m *MockLessonService) Submission(ctx context.Context, userID, attemptID string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, userID, attemptID)
	if args.Get(0) == nil {
		return nil, args.Get(1).(storage.ObjectInfo), args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}
