package task

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/driveflow/driveflow-api/internal/domain"
	"github.com/driveflow/driveflow-api/internal/events"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/google/uuid"
)

// memoryTaskStore is an in-memory Store used across the package tests. Its
// claim and reset operations implement the same compare-and-swap semantics
// as the SQL store.
type memoryTaskStore struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*Record
}

func newMemoryTaskStore() *memoryTaskStore {
	return &memoryTaskStore{recs: make(map[uuid.UUID]*Record)}
}

func cloneRecord(rec *Record) *Record {
	c := *rec
	if rec.ClaimedAt != nil {
		t := *rec.ClaimedAt
		c.ClaimedAt = &t
	}
	return &c
}

func (s *memoryTaskStore) CreateTask(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *memoryTaskStore) GetTask(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneRecord(rec), nil
}

func (s *memoryTaskStore) GetActiveTaskForEntity(_ context.Context, entityID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.recs {
		if rec.EntityID == entityID &&
			(rec.Status == StatusPending || rec.Status == StatusProcessing) {
			return cloneRecord(rec), nil
		}
	}
	return nil, store.ErrTaskNotFound
}

func (s *memoryTaskStore) ClaimTask(_ context.Context, id uuid.UUID, owner string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	now := time.Now().UTC()
	if rec.Status != StatusPending || rec.VisibleAfter.After(now) {
		return nil, store.ErrConflict
	}
	rec.Status = StatusProcessing
	rec.ClaimedAt = &now
	rec.ClaimOwner = owner
	rec.UpdatedAt = now
	return cloneRecord(rec), nil
}

func (s *memoryTaskStore) CompleteTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if rec.Status != StatusProcessing {
		return store.ErrConflict
	}
	rec.Status = StatusCompleted
	rec.Progress = 100
	rec.ClaimedAt = nil
	rec.ClaimOwner = ""
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryTaskStore) FailTask(_ context.Context, id uuid.UUID, attemptCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if rec.Status != StatusProcessing {
		return store.ErrConflict
	}
	rec.Status = StatusFailed
	rec.AttemptCount = attemptCount
	rec.LastError = errMsg
	rec.ClaimedAt = nil
	rec.ClaimOwner = ""
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryTaskStore) RequeueTask(
	_ context.Context,
	id uuid.UUID,
	visibleAfter time.Time,
	attemptCount, progress int,
	lastError string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	rec.Status = StatusPending
	rec.VisibleAfter = visibleAfter
	rec.AttemptCount = attemptCount
	rec.Progress = progress
	rec.LastError = lastError
	rec.ClaimedAt = nil
	rec.ClaimOwner = ""
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryTaskStore) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	rec.Progress = progress
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryTaskStore) GetDueTasks(_ context.Context, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var due []*Record
	for _, rec := range s.recs {
		if rec.Status == StatusPending && !rec.VisibleAfter.After(now) {
			due = append(due, cloneRecord(rec))
			if limit > 0 && len(due) >= limit {
				break
			}
		}
	}
	return due, nil
}

func (s *memoryTaskStore) GetStaleTasks(_ context.Context, olderThan time.Duration) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var stale []*Record
	for _, rec := range s.recs {
		if rec.Status == StatusProcessing && rec.ClaimedAt != nil && rec.ClaimedAt.Before(cutoff) {
			stale = append(stale, cloneRecord(rec))
		}
	}
	return stale, nil
}

func (s *memoryTaskStore) ResetForReprocess(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if rec.Status != StatusFailed {
		return store.ErrConflict
	}
	rec.Status = StatusPending
	rec.AttemptCount = 0
	rec.Progress = 0
	rec.LastError = ""
	rec.VisibleAfter = time.Now().UTC()
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// setClaimedAt rewinds a claim timestamp, used to simulate crashed workers.
func (s *memoryTaskStore) setClaimedAt(id uuid.UUID, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[id]; ok {
		rec.ClaimedAt = &t
	}
}

// fakeFileStore is an in-memory store.FileStore.
type fakeFileStore struct {
	mu    sync.Mutex
	files map[uuid.UUID]*domain.File
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: make(map[uuid.UUID]*domain.File)}
}

func (s *fakeFileStore) add(f *domain.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.ID] = f
}

func (s *fakeFileStore) GetFile(_ context.Context, id uuid.UUID) (*domain.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, store.ErrFileNotFound
	}
	c := *f
	return &c, nil
}

func (s *fakeFileStore) UpdateProcessingStatus(_ context.Context, id uuid.UUID, status domain.ProcessingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[id]; ok {
		f.Status = status
	}
	return nil
}

func (s *fakeFileStore) SaveEnrichment(_ context.Context, file *domain.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *file
	s.files[file.ID] = &c
	return nil
}

func (s *fakeFileStore) SaveThumbnailKey(_ context.Context, id uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[id]; ok {
		f.ThumbnailKey = key
	}
	return nil
}

// fakeStage is a configurable Stage for pipeline tests.
type fakeStage struct {
	name       string
	checkpoint int
	run        func(ctx context.Context, st *State) error
}

func (s *fakeStage) Name() string    { return s.name }
func (s *fakeStage) Checkpoint() int { return s.checkpoint }
func (s *fakeStage) Run(ctx context.Context, st *State) error {
	if s.run != nil {
		return s.run(ctx, st)
	}
	return nil
}

// okSet builds a minimal valid stage set where every kind runs the given
// stages (defaulting to a single no-op stage at checkpoint 100).
func okSet(stages ...Stage) StageSet {
	if len(stages) == 0 {
		stages = []Stage{&fakeStage{name: "noop", checkpoint: 100}}
	}
	set := StageSet{}
	for _, kind := range []Kind{KindFullProcess, KindReprocess, KindThumbnail, KindNotify, KindCleanup} {
		set[kind] = stages
	}
	return set
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// nopEmitter drops all events.
type nopEmitter struct{}

func (nopEmitter) EmitTransition(context.Context, events.TaskTransitionEvent) {}
