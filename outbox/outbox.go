// Package outbox keeps one durable sync task per accepted submission.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mbolis/survey-kiosk/model"
	"github.com/mbolis/survey-kiosk/store"
)

type Manager struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *Manager {
	return &Manager{store: s, now: time.Now}
}

// WithClock replaces the wall clock used for task timestamps.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Enqueue creates the unsynced task for a submission within tx, so the task
// exists exactly when the submission does.
func (m *Manager) Enqueue(ctx context.Context, tx store.Tx, submissionID int64, payload model.Payload) (int64, error) {
	task := model.OutboxTask{
		SubmissionID:   submissionID,
		IdempotencyKey: uuid.NewString(),
		Payload:        payload,
		CreatedAt:      m.now().UnixMilli(),
	}

	key, err := tx.Put(ctx, store.Outbox, "", task)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	task.ID, err = key.Int64()
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	// stamp the assigned id into the document
	if _, err := tx.Put(ctx, store.Outbox, key, task); err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return task.ID, nil
}

// List returns every task, oldest first.
func (m *Manager) List(ctx context.Context) ([]model.OutboxTask, error) {
	return m.list(ctx, func(model.OutboxTask) bool { return true })
}

// ListPending returns the unsynced tasks, oldest first.
func (m *Manager) ListPending(ctx context.Context) ([]model.OutboxTask, error) {
	return m.list(ctx, func(t model.OutboxTask) bool { return !t.Synced })
}

func (m *Manager) list(ctx context.Context, keep func(model.OutboxTask) bool) ([]model.OutboxTask, error) {
	var tasks []model.OutboxTask
	err := m.store.GetAll(ctx, store.Outbox, func(key store.Key, decode store.Decoder) error {
		var task model.OutboxTask
		if err := decode(&task); err != nil {
			return err
		}
		if keep(task) {
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return tasks, nil
}

// Get loads a single task.
func (m *Manager) Get(ctx context.Context, id int64) (task model.OutboxTask, ok bool, err error) {
	ok, err = m.store.Get(ctx, store.Outbox, store.IntKey(id), &task)
	return
}

// MarkSynced flags a task as delivered. Marking an already synced task
// leaves it untouched.
func (m *Manager) MarkSynced(ctx context.Context, id int64) error {
	return m.modify(ctx, id, "mark synced", func(task *model.OutboxTask) bool {
		if task.Synced {
			return false
		}
		at := m.now().UnixMilli()
		task.Synced = true
		task.SyncedAt = &at
		task.LastError = ""
		return true
	})
}

// SetRemoteSubmission checkpoints the backend submission id of a task, so
// a retry skips creating another remote submission.
func (m *Manager) SetRemoteSubmission(ctx context.Context, id int64, remoteID string) error {
	return m.modify(ctx, id, "set remote submission", func(task *model.OutboxTask) bool {
		if task.RemoteSubmissionID == remoteID {
			return false
		}
		task.RemoteSubmissionID = remoteID
		return true
	})
}

// RecordFailure counts a failed attempt and keeps its cause for inspection.
func (m *Manager) RecordFailure(ctx context.Context, id int64, cause error) error {
	return m.modify(ctx, id, "record failure", func(task *model.OutboxTask) bool {
		if task.Synced {
			return false
		}
		at := m.now().UnixMilli()
		task.Attempts++
		task.LastAttemptAt = &at
		if cause != nil {
			task.LastError = cause.Error()
		}
		return true
	})
}

func (m *Manager) modify(ctx context.Context, id int64, op string, change func(*model.OutboxTask) bool) error {
	err := m.store.Update(ctx, func(tx store.Tx) error {
		var task model.OutboxTask
		ok, err := tx.Get(ctx, store.Outbox, store.IntKey(id), &task)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if !change(&task) {
			return nil
		}
		_, err = tx.Put(ctx, store.Outbox, store.IntKey(id), task)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s %d: %w", op, id, err)
	}
	return nil
}

// Prune deletes synced tasks delivered before the cutoff. Unsynced tasks
// are never removed.
func (m *Manager) Prune(ctx context.Context, before time.Time) (int, error) {
	cutoff := before.UnixMilli()
	pruned := 0
	err := m.store.Update(ctx, func(tx store.Tx) error {
		var stale []store.Key
		err := tx.GetAll(ctx, store.Outbox, func(key store.Key, decode store.Decoder) error {
			var task model.OutboxTask
			if err := decode(&task); err != nil {
				return err
			}
			if task.Synced && task.SyncedAt != nil && *task.SyncedAt < cutoff {
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := tx.Delete(ctx, store.Outbox, key); err != nil {
				return err
			}
		}
		pruned = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	return pruned, nil
}
