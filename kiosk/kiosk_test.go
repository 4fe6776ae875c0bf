package kiosk

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincent-petithory/dataurl"

	"github.com/mbolis/survey-kiosk/backend"
	"github.com/mbolis/survey-kiosk/connectivity"
	"github.com/mbolis/survey-kiosk/counter"
	"github.com/mbolis/survey-kiosk/database"
	"github.com/mbolis/survey-kiosk/model"
	"github.com/mbolis/survey-kiosk/outbox"
	"github.com/mbolis/survey-kiosk/store"
	"github.com/mbolis/survey-kiosk/syncer"
)

type stubBackend struct {
	mu      sync.Mutex
	created int
	inserts int
	offline bool
}

func (b *stubBackend) CreateSubmission(context.Context, backend.Submission) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline {
		return "", errors.New("dial tcp: no route to host")
	}
	b.created++
	return "remote", nil
}

func (b *stubBackend) Upload(context.Context, string, []byte, string) error {
	return nil
}

func (b *stubBackend) InsertAnswers(context.Context, []backend.Answer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inserts++
	return nil
}

var fixedNow = time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)

func newService(s store.Store, b backend.Backend, signal connectivity.Signal) *Service {
	clock := func() time.Time { return fixedNow }
	m := outbox.New(s).WithClock(clock)
	c := counter.New(s, time.UTC).WithClock(clock)
	e := syncer.New(m, b, signal)
	return New(s, m, c, e, signal).WithClock(clock)
}

func openSQLite(t *testing.T, path string) store.Store {
	t.Helper()
	db, err := database.Open(path)
	require.NoError(t, err)
	return store.NewSQLite(db)
}

func exampleSurvey() model.SurveyData {
	audio := dataurl.New([]byte("opus"), "audio/webm").String()
	return model.SurveyData{
		Timestamp: "2025-01-01T09:30:00.000Z",
		StationID: "TOTEM-1",
		Responses: model.Responses{
			FutureVision: model.Response{Text: "Mais árvores"},
			MagicWand:    model.Response{Audio: &audio},
		},
	}
}

func TestSubmit_ExampleScenario(t *testing.T) {
	s := store.NewMemory()
	svc := newService(s, &stubBackend{}, connectivity.Static(false))
	ctx := context.Background()

	id, err := svc.Submit(ctx, exampleSurvey())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	records, err := svc.Submissions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, int64(1), record.ID)
	assert.Equal(t, "TOTEM-1", record.StationID)
	require.Len(t, record.Attachments, 2)
	assert.Equal(t, "TOTEM-1_2025-01-01T09-30-00-000Z_q1_text.txt", record.Attachments[0].Name)
	assert.Equal(t, "TOTEM-1_2025-01-01T09-30-00-000Z_q2_audio.webm", record.Attachments[1].Name)
	for _, a := range record.Attachments {
		assert.Empty(t, a.Data, "record keeps metadata only")
	}
	assert.NotEmpty(t, record.SavedAt)

	for _, a := range record.Attachments {
		file, ok, err := svc.File(ctx, a.Name)
		require.NoError(t, err)
		require.True(t, ok, a.Name)
		assert.NotEmpty(t, file.Data)
	}

	tasks, err := svc.Outbox(ctx, true)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(1), tasks[0].SubmissionID)
	assert.False(t, tasks[0].Synced)
	require.Len(t, tasks[0].Payload.Attachments, 2)
	assert.NotEmpty(t, tasks[0].Payload.Attachments[0].Data)

	today, err := svc.TodayCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, today)

	var raw int
	ok, err := s.Get(ctx, store.Meta, "count:2025-01-01", &raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, raw)
}

func TestSubmit_OfflineThenSync(t *testing.T) {
	s := store.NewMemory()
	b := &stubBackend{}
	svc := newService(s, b, connectivity.Static(true))
	ctx := context.Background()

	b.offline = true
	_, err := svc.Submit(ctx, exampleSurvey())
	require.NoError(t, err, "remote failures never fail a submission")

	report := svc.SyncOutbox(ctx)
	assert.Equal(t, 1, report.Failed)

	b.offline = false
	report = svc.SyncOutbox(ctx)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Synced)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Online: true, Pending: 0, Today: 1}, status)

	report = svc.SyncOutbox(ctx)
	assert.Equal(t, 0, report.Pending)
	assert.Equal(t, 1, b.created)
	assert.Equal(t, 1, b.inserts)

	today, err := svc.TodayCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, today, "sync does not count again")
}

func TestSubmit_StorageFailurePropagates(t *testing.T) {
	s := store.NewMemory()
	svc := newService(s, &stubBackend{}, connectivity.Static(false))
	ctx := context.Background()
	s.FailWrites(errors.New("disk full"))

	_, err := svc.Submit(ctx, exampleSurvey())
	require.Error(t, err)
	assert.True(t, store.IsStorageError(err))

	s.FailWrites(nil)
	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{}, status, "nothing of a failed submission is kept")

	records, err := svc.Submissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSubmit_DurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosk.sqlite")
	ctx := context.Background()

	s := openSQLite(t, path)
	svc := newService(s, &stubBackend{}, connectivity.Static(false))
	first, err := svc.Submit(ctx, exampleSurvey())
	require.NoError(t, err)
	second, err := svc.Submit(ctx, exampleSurvey())
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
	require.NoError(t, s.Close())

	s = openSQLite(t, path)
	t.Cleanup(func() { s.Close() })
	b := &stubBackend{}
	svc = newService(s, b, connectivity.Static(true))

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Online: true, Pending: 2, Today: 2}, status)

	report := svc.SyncOutbox(ctx)
	require.NoError(t, report.Err())
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 2, b.created)

	third, err := svc.Submit(ctx, exampleSurvey())
	require.NoError(t, err)
	assert.Equal(t, second+1, third)
}

func TestOnChange(t *testing.T) {
	svc := newService(store.NewMemory(), &stubBackend{}, connectivity.Static(true))
	ctx := context.Background()

	var got []Status
	unsubscribe := svc.OnChange(func(s Status) { got = append(got, s) })

	_, err := svc.Submit(ctx, exampleSurvey())
	require.NoError(t, err)
	svc.SyncOutbox(ctx)
	svc.ConnectivityChanged(true)

	require.Len(t, got, 3)
	assert.Equal(t, Status{Online: true, Pending: 1, Today: 1}, got[0])
	assert.Equal(t, Status{Online: true, Pending: 0, Today: 1}, got[1])

	unsubscribe()
	svc.ConnectivityChanged(false)
	assert.Len(t, got, 3)
}

func TestPruneOutbox(t *testing.T) {
	svc := newService(store.NewMemory(), &stubBackend{}, connectivity.Static(true))
	ctx := context.Background()

	_, err := svc.Submit(ctx, exampleSurvey())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, exampleSurvey())
	require.NoError(t, err)
	require.NoError(t, svc.SyncOutbox(ctx).Err())

	n, err := svc.PruneOutbox(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = svc.PruneOutbox(ctx, fixedNow.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tasks, err := svc.Outbox(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	records, err := svc.Submissions(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2, "pruning keeps submission records")
}
