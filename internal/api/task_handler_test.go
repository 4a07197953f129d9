package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/driveflow/driveflow-api/internal/domain"
	"github.com/driveflow/driveflow-api/internal/quota"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/driveflow/driveflow-api/internal/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// memTaskStore is a minimal in-memory task.Store for handler tests.
type memTaskStore struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*task.Record
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{recs: make(map[uuid.UUID]*task.Record)}
}

func (s *memTaskStore) CreateTask(_ context.Context, rec *task.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *rec
	s.recs[rec.ID] = &c
	return nil
}

func (s *memTaskStore) GetTask(_ context.Context, id uuid.UUID) (*task.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	c := *rec
	return &c, nil
}

func (s *memTaskStore) GetActiveTaskForEntity(_ context.Context, entityID uuid.UUID) (*task.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.recs {
		if rec.EntityID == entityID &&
			(rec.Status == task.StatusPending || rec.Status == task.StatusProcessing) {
			c := *rec
			return &c, nil
		}
	}
	return nil, store.ErrTaskNotFound
}

func (s *memTaskStore) ClaimTask(_ context.Context, id uuid.UUID, owner string) (*task.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if rec.Status != task.StatusPending {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	rec.Status = task.StatusProcessing
	rec.ClaimedAt = &now
	rec.ClaimOwner = owner
	c := *rec
	return &c, nil
}

func (s *memTaskStore) CompleteTask(_ context.Context, id uuid.UUID) error { return nil }

func (s *memTaskStore) FailTask(_ context.Context, id uuid.UUID, attemptCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if rec.Status != task.StatusProcessing {
		return store.ErrConflict
	}
	rec.Status = task.StatusFailed
	rec.AttemptCount = attemptCount
	rec.LastError = errMsg
	rec.ClaimedAt = nil
	rec.ClaimOwner = ""
	return nil
}

func (s *memTaskStore) RequeueTask(context.Context, uuid.UUID, time.Time, int, int, string) error {
	return nil
}

func (s *memTaskStore) UpdateProgress(context.Context, uuid.UUID, int) error { return nil }

func (s *memTaskStore) GetDueTasks(context.Context, int) ([]*task.Record, error) { return nil, nil }

func (s *memTaskStore) GetStaleTasks(context.Context, time.Duration) ([]*task.Record, error) {
	return nil, nil
}

func (s *memTaskStore) ResetForReprocess(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if rec.Status != task.StatusFailed {
		return store.ErrConflict
	}
	rec.Status = task.StatusPending
	rec.AttemptCount = 0
	rec.Progress = 0
	rec.LastError = ""
	return nil
}

// memFileStore is a minimal in-memory store.FileStore for handler tests.
type memFileStore struct {
	files map[uuid.UUID]*domain.File
}

func (s *memFileStore) GetFile(_ context.Context, id uuid.UUID) (*domain.File, error) {
	f, ok := s.files[id]
	if !ok {
		return nil, store.ErrFileNotFound
	}
	return f, nil
}

func (s *memFileStore) UpdateProcessingStatus(context.Context, uuid.UUID, domain.ProcessingStatus) error {
	return nil
}

func (s *memFileStore) SaveEnrichment(context.Context, *domain.File) error { return nil }

func (s *memFileStore) SaveThumbnailKey(context.Context, uuid.UUID, string) error { return nil }

type apiFixture struct {
	router http.Handler
	tasks  *memTaskStore
	files  *memFileStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	tasks := newMemTaskStore()
	files := &memFileStore{files: make(map[uuid.UUID]*domain.File)}
	queue := task.NewQueue(16, testLogger())
	dispatcher := task.NewDispatcher(tasks, files, queue, testLogger())

	governor, err := quota.NewGovernor(
		map[string]quota.Limits{"gemini": {PerMinute: 15, PerDay: 1500}},
		"ollama", "UTC", testLogger())
	require.NoError(t, err)

	router := NewRouter(NewTaskHandler(dispatcher), NewQuotaHandler(governor), NewHealthHandler())

	return &apiFixture{router: router, tasks: tasks, files: files}
}

func (f *apiFixture) addFile(t *testing.T) *domain.File {
	t.Helper()
	file, err := domain.NewFile(uuid.New(), "notes.txt", "uploads/notes.txt", "text/plain", 64)
	require.NoError(t, err)
	f.files.files[file.ID] = file
	return file
}

func (f *apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestProcessFileAccepted(t *testing.T) {
	f := newAPIFixture(t)
	file := f.addFile(t)

	rec := f.do(http.MethodPost, "/api/files/"+file.ID.String()+"/process", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp TaskSubmittedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	taskID, err := uuid.Parse(resp.TaskID)
	require.NoError(t, err)

	stored, err := f.tasks.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, task.KindFullProcess, stored.Kind)
	assert.Equal(t, task.StatusPending, stored.Status)
}

func TestProcessFileWithExplicitKind(t *testing.T) {
	f := newAPIFixture(t)
	file := f.addFile(t)

	rec := f.do(http.MethodPost, "/api/files/"+file.ID.String()+"/process",
		ProcessFileRequest{Kind: "thumbnail"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp TaskSubmittedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	stored, err := f.tasks.GetTask(context.Background(), uuid.MustParse(resp.TaskID))
	require.NoError(t, err)
	assert.Equal(t, task.KindThumbnail, stored.Kind)
}

func TestProcessFileIsIdempotentPerEntity(t *testing.T) {
	f := newAPIFixture(t)
	file := f.addFile(t)

	first := f.do(http.MethodPost, "/api/files/"+file.ID.String()+"/process", nil)
	second := f.do(http.MethodPost, "/api/files/"+file.ID.String()+"/process", nil)
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Equal(t, http.StatusAccepted, second.Code)

	var a, b TaskSubmittedResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.TaskID, b.TaskID)
}

func TestProcessFileRejections(t *testing.T) {
	f := newAPIFixture(t)
	file := f.addFile(t)

	t.Run("unknown file", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/files/"+uuid.New().String()+"/process", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed file ID", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/files/not-a-uuid/process", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown kind", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/files/"+file.ID.String()+"/process",
			map[string]string{"kind": "transcode"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetTaskStatus(t *testing.T) {
	f := newAPIFixture(t)
	file := f.addFile(t)

	submit := f.do(http.MethodPost, "/api/files/"+file.ID.String()+"/process", nil)
	var resp TaskSubmittedResponse
	require.NoError(t, json.Unmarshal(submit.Body.Bytes(), &resp))

	rec := f.do(http.MethodGet, "/api/tasks/"+resp.TaskID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view task.StatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, resp.TaskID, view.TaskID.String())
	assert.Equal(t, file.ID, view.EntityID)
	assert.Equal(t, task.StatusPending, view.Status)
	assert.Equal(t, 0, view.Progress)
}

func TestGetTaskNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/tasks/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp struct {
		Error   string `json:"error"`
		TraceID string `json:"trace_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "Task not found", errResp.Error)
	assert.NotEmpty(t, errResp.TraceID)
}

func TestReprocessTask(t *testing.T) {
	f := newAPIFixture(t)
	file := f.addFile(t)

	submit := f.do(http.MethodPost, "/api/files/"+file.ID.String()+"/process", nil)
	var resp TaskSubmittedResponse
	require.NoError(t, json.Unmarshal(submit.Body.Bytes(), &resp))
	taskID := uuid.MustParse(resp.TaskID)

	t.Run("pending task is rejected", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/tasks/"+resp.TaskID+"/reprocess", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("failed task is reset", func(t *testing.T) {
		_, err := f.tasks.ClaimTask(context.Background(), taskID, "w1")
		require.NoError(t, err)
		require.NoError(t, f.tasks.FailTask(context.Background(), taskID, 3, "provider unavailable"))

		rec := f.do(http.MethodPost, "/api/tasks/"+resp.TaskID+"/reprocess", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)

		stored, err := f.tasks.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusPending, stored.Status)
		assert.Equal(t, 0, stored.AttemptCount)
	})
}

func TestGetQuota(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/quota", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QuotaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, "gemini", resp.Providers[0].Provider)
	assert.Equal(t, 15, resp.Providers[0].PerMinute)
	assert.Equal(t, 1500, resp.Providers[0].PerDay)
}

func TestGetHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Greater(t, resp.MemoryTotalMB, uint64(0))
}
