package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"deserlab/internal/clock"
	"deserlab/internal/model"
	"deserlab/internal/repository"
	"deserlab/internal/storage"
)

// AnonymousUser is recorded when a submission carries no user id.
const AnonymousUser = "anonymous"

var (
	ErrIDRequired      = errors.New("id is required")
	ErrNotFound        = errors.New("submission not found")
	ErrArchiveDisabled = errors.New("submission archive is disabled")
)

const tracerName = "deserlab/internal/service"

// Submission is one token sent to the assignment by a user.
type Submission struct {
	UserID string
	Token  string
}

// LessonService defines the use cases of the deserialization assignment.
type LessonService interface {
	// Check judges a submission and records it as an attempt.
	// Recording or archiving failures never change the returned result.
	Check(ctx context.Context, sub Submission) model.AttackResult

	// Progress returns the attempts summary of userID.
	Progress(ctx context.Context, userID string) (*model.Progress, error)

	// Submission streams back the archived token of one of userID's attempts.
	Submission(ctx context.Context, userID, attemptID string) (io.ReadCloser, storage.ObjectInfo, error)
}

// lessonService is a concrete implementation of LessonService.
type lessonService struct {
	checker *TaskChecker
	repo    repository.AttemptRepository
	archive storage.Storage
	clock   clock.Clock
	metrics *Metrics
	log     *zap.Logger
}

// Option configures a LessonService.
type Option func(*lessonService)

// WithArchive enables storing submitted tokens in store.
func WithArchive(store storage.Storage) Option {
	return func(s *lessonService) { s.archive = store }
}

func WithMetrics(m *Metrics) Option {
	return func(s *lessonService) { s.metrics = m }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *lessonService) { s.log = log }
}

// WithClock sets the clock used for attempt timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *lessonService) { s.clock = c }
}

// NewLessonService constructs a new LessonService.
func NewLessonService(checker *TaskChecker, repo repository.AttemptRepository, opts ...Option) LessonService {
	s := &lessonService{checker: checker, repo: repo, clock: clock.Real(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *lessonService) Check(ctx context.Context, sub Submission) model.AttackResult {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "lesson.check", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	userID := normalizeUser(sub.UserID)
	v := s.checker.Check(ctx, sub.Token)
	s.metrics.observe(v)

	span.SetAttributes(
		attribute.String("lesson.assignment", AssignmentName),
		attribute.String("lesson.outcome", string(v.Outcome)),
		attribute.Int64("lesson.delay_ms", v.Delay.Milliseconds()),
	)

	attempt := &model.Attempt{
		ID:          uuid.NewString(),
		UserID:      userID,
		Assignment:  AssignmentName,
		Solved:      v.Result.LessonCompleted,
		FeedbackKey: v.Result.FeedbackKey,
		DelayMs:     v.Delay.Milliseconds(),
		CreatedAt:   s.clock.Now().UTC(),
	}

	if s.archive != nil {
		key, err := s.archiveToken(ctx, attempt, sub.Token, v.Outcome)
		if err != nil {
			span.RecordError(err)
			s.log.Warn("archive submission failed", zap.String("attempt_id", attempt.ID), zap.Error(err))
		} else {
			attempt.ArchiveKey = key
		}
	}

	if _, err := s.repo.Create(ctx, attempt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record attempt")
		s.log.Warn("record attempt failed", zap.String("attempt_id", attempt.ID), zap.Error(err))
	}

	s.log.Info("lesson_check",
		zap.String("attempt_id", attempt.ID),
		zap.String("user_id", userID),
		zap.String("outcome", string(v.Outcome)),
		zap.Int64("delay_ms", attempt.DelayMs),
		zap.Bool("solved", attempt.Solved),
	)
	return v.Result
}

func (s *lessonService) archiveToken(ctx context.Context, a *model.Attempt, token string, o Outcome) (string, error) {
	key := fmt.Sprintf("submissions/%s/%s.b64", objectSafe(a.UserID), a.ID)
	info, err := s.archive.Put(ctx, key, strings.NewReader(token), storage.PutObjectOptions{
		Size:        int64(len(token)),
		ContentType: "text/plain",
		Metadata: map[string]string{
			"user-id": a.UserID,
			"outcome": string(o),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload to storage: %w", err)
	}
	return info.Key, nil
}

// Progress returns the attempts summary without exposing repository types.
func (s *lessonService) Progress(ctx context.Context, userID string) (*model.Progress, error) {
	return s.repo.Progress(ctx, normalizeUser(userID), AssignmentName)
}

// Submission looks up the attempt, then streams its archived token.
// Attempts of other users are reported as not found.
func (s *lessonService) Submission(ctx context.Context, userID, attemptID string) (io.ReadCloser, storage.ObjectInfo, error) {
	if s.archive == nil {
		return nil, storage.ObjectInfo{}, ErrArchiveDisabled
	}
	if attemptID == "" {
		return nil, storage.ObjectInfo{}, ErrIDRequired
	}

	a, err := s.repo.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ObjectInfo{}, ErrNotFound
		}
		return nil, storage.ObjectInfo{}, err
	}
	if a.UserID != normalizeUser(userID) || a.ArchiveKey == "" {
		return nil, storage.ObjectInfo{}, ErrNotFound
	}

	rc, info, err := s.archive.Get(ctx, a.ArchiveKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, ErrNotFound
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("get from storage: %w", err)
	}
	return rc, info, nil
}

func normalizeUser(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return AnonymousUser
	}
	return id
}

// objectSafe keeps user ids from adding path segments to object keys.
func objectSafe(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
