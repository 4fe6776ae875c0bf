// Package kiosk is what the survey UI talks to: it accepts submissions,
// reports the daily count and drives background sync.
package kiosk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbolis/survey-kiosk/attachment"
	"github.com/mbolis/survey-kiosk/connectivity"
	"github.com/mbolis/survey-kiosk/counter"
	"github.com/mbolis/survey-kiosk/log"
	"github.com/mbolis/survey-kiosk/model"
	"github.com/mbolis/survey-kiosk/outbox"
	"github.com/mbolis/survey-kiosk/store"
	"github.com/mbolis/survey-kiosk/syncer"
)

type Status struct {
	Online  bool `json:"online"`
	Pending int  `json:"pending"`
	Today   int  `json:"today"`
}

type Service struct {
	store   store.Store
	outbox  *outbox.Manager
	counter *counter.Counter
	engine  *syncer.Engine
	signal  connectivity.Signal
	now     func() time.Time

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Status)
}

func New(s store.Store, m *outbox.Manager, c *counter.Counter, e *syncer.Engine, signal connectivity.Signal) *Service {
	svc := &Service{
		store:   s,
		outbox:  m,
		counter: c,
		engine:  e,
		signal:  signal,
		now:     time.Now,

		listeners: map[int]func(Status){},
	}
	e.OnDrain(func(r syncer.Report) {
		if !r.Offline && r.Pending > 0 {
			svc.publish(context.Background())
		}
	})
	return svc
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit persists a survey and queues it for sync. The submission record,
// its attachment blobs, its outbox task and the daily count are written in
// a single transaction; only a local storage failure makes it fail.
func (s *Service) Submit(ctx context.Context, data model.SurveyData) (int64, error) {
	now := s.now()
	attachments := attachment.Encode(data, now)

	var id int64
	err := s.store.Update(ctx, func(tx store.Tx) error {
		for _, a := range attachments {
			if _, err := tx.Put(ctx, store.Files, store.Key(a.Name), a); err != nil {
				return err
			}
		}

		record := model.SubmissionRecord{
			SurveyData:  data,
			Attachments: attachment.Metadata(attachments),
			SavedAt:     now.UTC().Format(time.RFC3339Nano),
		}
		key, err := tx.Put(ctx, store.Submissions, "", record)
		if err != nil {
			return err
		}
		if id, err = key.Int64(); err != nil {
			return err
		}
		record.ID = id
		if _, err := tx.Put(ctx, store.Submissions, key, record); err != nil {
			return err
		}

		payload := model.Payload{SurveyData: data, Attachments: attachments}
		if _, err := s.outbox.Enqueue(ctx, tx, id, payload); err != nil {
			return err
		}
		_, err = s.counter.Increment(ctx, tx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("submit: %w", err)
	}

	log.WithFields(log.Fields{"submission": id, "attachments": len(attachments)}).Info("submission saved")
	s.engine.Trigger()
	s.publish(ctx)
	return id, nil
}

func (s *Service) TodayCount(ctx context.Context) (int, error) {
	return s.counter.Today(ctx)
}

// SyncOutbox runs a drain pass now and waits for it.
func (s *Service) SyncOutbox(ctx context.Context) syncer.Report {
	return s.engine.Drain(ctx)
}

// RequestSync queues a drain pass on the background worker.
func (s *Service) RequestSync() {
	s.engine.Trigger()
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	pending, err := s.outbox.ListPending(ctx)
	if err != nil {
		return Status{}, err
	}
	today, err := s.counter.Today(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Online:  s.signal.Online(),
		Pending: len(pending),
		Today:   today,
	}, nil
}

// Submissions lists every stored submission record, oldest first.
func (s *Service) Submissions(ctx context.Context) ([]model.SubmissionRecord, error) {
	var records []model.SubmissionRecord
	err := s.store.GetAll(ctx, store.Submissions, func(_ store.Key, decode store.Decoder) error {
		var r model.SubmissionRecord
		if err := decode(&r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return records, nil
}

// File returns a stored attachment, payload included.
func (s *Service) File(ctx context.Context, name string) (a model.Attachment, ok bool, err error) {
	ok, err = s.store.Get(ctx, store.Files, store.Key(name), &a)
	return
}

// Outbox lists the sync tasks; pendingOnly drops the synced ones.
func (s *Service) Outbox(ctx context.Context, pendingOnly bool) ([]model.OutboxTask, error) {
	if pendingOnly {
		return s.outbox.ListPending(ctx)
	}
	return s.outbox.List(ctx)
}

// PruneOutbox deletes synced tasks delivered before the cutoff.
func (s *Service) PruneOutbox(ctx context.Context, before time.Time) (int, error) {
	n, err := s.outbox.Prune(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("pruned %d synced outbox tasks", n)
	}
	return n, nil
}

// ConnectivityChanged reacts to an online/offline transition; coming back
// online triggers a drain.
func (s *Service) ConnectivityChanged(online bool) {
	if online {
		s.engine.Trigger()
	}
	s.publish(context.Background())
}

// OnChange registers fn to receive the status after every change.
func (s *Service) OnChange(fn func(Status)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) publish(ctx context.Context) {
	s.mu.Lock()
	listeners := make([]func(Status), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	if len(listeners) == 0 {
		return
	}

	status, err := s.Status(ctx)
	if err != nil {
		log.Errorf("status: %v", err)
		return
	}
	for _, fn := range listeners {
		fn(status)
	}
}
