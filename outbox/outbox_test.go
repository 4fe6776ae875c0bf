package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/survey-kiosk/model"
	"github.com/mbolis/survey-kiosk/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newManager(t *testing.T) (*Manager, *store.Memory, *fakeClock) {
	t.Helper()
	s := store.NewMemory()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(s).WithClock(clock.now), s, clock
}

func enqueue(t *testing.T, m *Manager, s store.Store, submissionID int64) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := s.Update(ctx, func(tx store.Tx) error {
		var err error
		id, err = m.Enqueue(ctx, tx, submissionID, model.Payload{
			SurveyData: model.SurveyData{StationID: "TOTEM-1"},
		})
		return err
	})
	require.NoError(t, err)
	return id
}

func TestEnqueue_CreatesUnsyncedTask(t *testing.T) {
	m, s, clock := newManager(t)
	ctx := context.Background()

	id := enqueue(t, m, s, 7)

	task, ok, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, int64(7), task.SubmissionID)
	assert.False(t, task.Synced)
	assert.Nil(t, task.SyncedAt)
	assert.Equal(t, clock.t.UnixMilli(), task.CreatedAt)
	assert.NotEmpty(t, task.IdempotencyKey)
	assert.Equal(t, "TOTEM-1", task.Payload.StationID)
}

func TestEnqueue_UniqueIdempotencyKeys(t *testing.T) {
	m, s, _ := newManager(t)
	a := enqueue(t, m, s, 1)
	b := enqueue(t, m, s, 2)

	ta, _, err := m.Get(context.Background(), a)
	require.NoError(t, err)
	tb, _, err := m.Get(context.Background(), b)
	require.NoError(t, err)
	assert.NotEqual(t, ta.IdempotencyKey, tb.IdempotencyKey)
}

func TestListPending_FIFOAndFiltered(t *testing.T) {
	m, s, _ := newManager(t)
	ctx := context.Background()

	ids := []int64{enqueue(t, m, s, 1), enqueue(t, m, s, 2), enqueue(t, m, s, 3)}
	require.NoError(t, m.MarkSynced(ctx, ids[1]))

	pending, err := m.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)

	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMarkSynced_Idempotent(t *testing.T) {
	m, s, clock := newManager(t)
	ctx := context.Background()
	id := enqueue(t, m, s, 1)

	require.NoError(t, m.MarkSynced(ctx, id))
	once, _, err := m.Get(ctx, id)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Hour)
	require.NoError(t, m.MarkSynced(ctx, id))
	twice, _, err := m.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.True(t, twice.Synced)
	require.NotNil(t, twice.SyncedAt)
}

func TestMarkSynced_UnknownTask(t *testing.T) {
	m, _, _ := newManager(t)
	err := m.MarkSynced(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetRemoteSubmission(t *testing.T) {
	m, s, _ := newManager(t)
	ctx := context.Background()
	id := enqueue(t, m, s, 1)

	require.NoError(t, m.SetRemoteSubmission(ctx, id, "remote-1"))

	task, _, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "remote-1", task.RemoteSubmissionID)
	assert.False(t, task.Synced)
}

func TestRecordFailure(t *testing.T) {
	m, s, _ := newManager(t)
	ctx := context.Background()
	id := enqueue(t, m, s, 1)

	require.NoError(t, m.RecordFailure(ctx, id, errors.New("503")))
	require.NoError(t, m.RecordFailure(ctx, id, errors.New("timeout")))

	task, _, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, task.Attempts)
	assert.Equal(t, "timeout", task.LastError)
	assert.NotNil(t, task.LastAttemptAt)

	require.NoError(t, m.MarkSynced(ctx, id))
	task, _, err = m.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, task.LastError)
}

func TestPrune_OnlyOldSyncedTasks(t *testing.T) {
	m, s, clock := newManager(t)
	ctx := context.Background()

	old := enqueue(t, m, s, 1)
	require.NoError(t, m.MarkSynced(ctx, old))

	clock.t = clock.t.Add(48 * time.Hour)
	recent := enqueue(t, m, s, 2)
	require.NoError(t, m.MarkSynced(ctx, recent))
	pending := enqueue(t, m, s, 3)

	n, err := m.Prune(ctx, clock.t.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, recent, all[0].ID)
	assert.Equal(t, pending, all[1].ID)
}

func TestEnqueue_StorageFailurePropagates(t *testing.T) {
	m, s, _ := newManager(t)
	s.FailWrites(errors.New("quota exceeded"))

	ctx := context.Background()
	err := s.Update(ctx, func(tx store.Tx) error {
		_, err := m.Enqueue(ctx, tx, 1, model.Payload{})
		return err
	})
	require.Error(t, err)
	assert.True(t, store.IsStorageError(err))

	pending, err := m.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
