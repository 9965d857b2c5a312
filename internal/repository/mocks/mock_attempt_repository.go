package mocks

import (
	"context"

	"deserlab/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, a *model.Attempt) (*model.Attempt, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attempt), args.Error(1)
}

func (m *MockAttemptRepository) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attempt), args.Error(1)
}

func (m *MockAttemptRepository) Progress(ctx context.Context, userID, assignment string) (*model.Progress, error) {
	args := m.Called(ctx, userID, assignment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Progress), args.Error(1)
}
