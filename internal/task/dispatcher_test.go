package task

import (
	"context"
	"testing"

	"github.com/driveflow/driveflow-api/internal/domain"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *memoryTaskStore, *fakeFileStore, *Queue) {
	t.Helper()
	tasks := newMemoryTaskStore()
	files := newFakeFileStore()
	queue := NewQueue(16, testLogger())
	return NewDispatcher(tasks, files, queue, testLogger()), tasks, files, queue
}

func addFile(t *testing.T, files *fakeFileStore) *domain.File {
	t.Helper()
	f, err := domain.NewFile(uuid.New(), "notes.txt", "files/u/notes.txt", "text/plain", 64)
	require.NoError(t, err)
	files.add(f)
	return f
}

func TestSubmitCreatesPendingTask(t *testing.T) {
	d, tasks, files, queue := newTestDispatcher(t)
	file := addFile(t, files)

	taskID, err := d.Submit(context.Background(), file.ID, KindFullProcess)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, taskID)

	rec, err := tasks.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, file.ID, rec.EntityID)
	assert.Equal(t, 0, rec.AttemptCount)
	assert.Equal(t, 0, rec.Progress)

	// A message referencing the task is on the queue.
	assert.Equal(t, taskID, <-queue.Chan())
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	d, _, files, _ := newTestDispatcher(t)
	file := addFile(t, files)

	_, err := d.Submit(context.Background(), file.ID, Kind("transcode"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSubmitRejectsUnknownEntity(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)

	_, err := d.Submit(context.Background(), uuid.New(), KindFullProcess)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestSubmitIsIdempotentPerEntity(t *testing.T) {
	d, _, files, _ := newTestDispatcher(t)
	file := addFile(t, files)

	first, err := d.Submit(context.Background(), file.ID, KindFullProcess)
	require.NoError(t, err)

	// A second submission while the first is still pending returns the
	// existing task instead of creating a duplicate.
	second, err := d.Submit(context.Background(), file.ID, KindFullProcess)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// racingTaskStore simulates losing a concurrent submit: the active-task
// pre-check sees nothing, but by the time CreateTask runs another submit has
// committed the winning record.
type racingTaskStore struct {
	*memoryTaskStore
	winner     *Record
	prechecked bool
}

func (s *racingTaskStore) GetActiveTaskForEntity(ctx context.Context, entityID uuid.UUID) (*Record, error) {
	if !s.prechecked {
		s.prechecked = true
		return nil, store.ErrTaskNotFound
	}
	return cloneRecord(s.winner), nil
}

func (s *racingTaskStore) CreateTask(context.Context, *Record) error {
	return store.ErrDuplicate
}

func TestSubmitLosingRaceReturnsWinningTask(t *testing.T) {
	files := newFakeFileStore()
	file := addFile(t, files)

	winner := NewRecord(file.ID, KindFullProcess)
	tasks := &racingTaskStore{memoryTaskStore: newMemoryTaskStore(), winner: winner}
	d := NewDispatcher(tasks, files, NewQueue(16, testLogger()), testLogger())

	taskID, err := d.Submit(context.Background(), file.ID, KindFullProcess)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, taskID)
}

func TestSubmitAllowsNewTaskAfterTerminalStatus(t *testing.T) {
	d, tasks, files, _ := newTestDispatcher(t)
	file := addFile(t, files)

	first, err := d.Submit(context.Background(), file.ID, KindFullProcess)
	require.NoError(t, err)

	_, err = tasks.ClaimTask(context.Background(), first, "w1")
	require.NoError(t, err)
	require.NoError(t, tasks.CompleteTask(context.Background(), first))

	second, err := d.Submit(context.Background(), file.ID, KindReprocess)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSubmitCleanupNeedsNoEntity(t *testing.T) {
	d, tasks, _, _ := newTestDispatcher(t)

	taskID, err := d.Submit(context.Background(), uuid.Nil, KindCleanup)
	require.NoError(t, err)

	rec, err := tasks.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, KindCleanup, rec.Kind)
	assert.Equal(t, uuid.Nil, rec.EntityID)
}

func TestReprocessFailedTask(t *testing.T) {
	d, tasks, files, _ := newTestDispatcher(t)
	file := addFile(t, files)

	taskID, err := d.Submit(context.Background(), file.ID, KindFullProcess)
	require.NoError(t, err)

	_, err = tasks.ClaimTask(context.Background(), taskID, "w1")
	require.NoError(t, err)
	require.NoError(t, tasks.FailTask(context.Background(), taskID, 1, "provider exploded"))

	got, err := d.Reprocess(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, got)

	rec, err := tasks.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 0, rec.AttemptCount)
	assert.Equal(t, 0, rec.Progress)
	assert.Empty(t, rec.LastError)
}

func TestReprocessRejectsNonFailedTask(t *testing.T) {
	d, tasks, files, _ := newTestDispatcher(t)
	file := addFile(t, files)

	taskID, err := d.Submit(context.Background(), file.ID, KindFullProcess)
	require.NoError(t, err)

	// Pending task: not reprocessable.
	_, err = d.Reprocess(context.Background(), taskID)
	assert.ErrorIs(t, err, ErrNotReprocessable)

	// Completed task: not reprocessable either.
	_, err = tasks.ClaimTask(context.Background(), taskID, "w1")
	require.NoError(t, err)
	require.NoError(t, tasks.CompleteTask(context.Background(), taskID))

	_, err = d.Reprocess(context.Background(), taskID)
	assert.ErrorIs(t, err, ErrNotReprocessable)
}

func TestReprocessUnknownTask(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)

	_, err := d.Reprocess(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestStatus(t *testing.T) {
	d, tasks, files, _ := newTestDispatcher(t)
	file := addFile(t, files)

	taskID, err := d.Submit(context.Background(), file.ID, KindFullProcess)
	require.NoError(t, err)

	_, err = tasks.ClaimTask(context.Background(), taskID, "w1")
	require.NoError(t, err)
	require.NoError(t, tasks.UpdateProgress(context.Background(), taskID, 30))

	view, err := d.Status(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, view.Status)
	assert.Equal(t, 30, view.Progress)
	assert.Equal(t, KindFullProcess, view.Kind)
	assert.Empty(t, view.LastError)
}
