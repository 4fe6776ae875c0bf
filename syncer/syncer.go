// Package syncer drains the outbox against the remote backend.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mbolis/survey-kiosk/attachment"
	"github.com/mbolis/survey-kiosk/backend"
	"github.com/mbolis/survey-kiosk/connectivity"
	"github.com/mbolis/survey-kiosk/log"
	"github.com/mbolis/survey-kiosk/model"
	"github.com/mbolis/survey-kiosk/outbox"
)

// Report summarizes one drain pass.
type Report struct {
	Offline bool
	Pending int
	Synced  int
	Failed  int
	Pruned  int
	Errors  *multierror.Error
}

func (r Report) Err() error {
	return r.Errors.ErrorOrNil()
}

func (r Report) String() string {
	if r.Offline {
		return "offline, nothing attempted"
	}
	return fmt.Sprintf("%d pending, %d synced, %d failed, %d pruned", r.Pending, r.Synced, r.Failed, r.Pruned)
}

type Engine struct {
	outbox    *outbox.Manager
	backend   backend.Backend
	signal    connectivity.Signal
	options   model.DemographicOptions
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	trigger chan struct{}

	listenersMu sync.Mutex
	listeners   []func(Report)
}

func New(m *outbox.Manager, b backend.Backend, signal connectivity.Signal) *Engine {
	return &Engine{
		outbox:  m,
		backend: b,
		signal:  signal,
		options: model.Options,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// WithRetention prunes synced tasks older than d after each drain.
// Zero keeps them forever.
func (e *Engine) WithRetention(d time.Duration) *Engine {
	e.retention = d
	return e
}

func (e *Engine) WithOptions(o model.DemographicOptions) *Engine {
	e.options = o
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// OnDrain registers fn to receive the report of every completed drain.
func (e *Engine) OnDrain(fn func(Report)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Trigger asks the worker started by Run for a drain. Requests made while
// one is already queued are merged into it.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run drains once, then again on every trigger, until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.trigger:
			e.Drain(ctx)
		}
	}
}

// Drain attempts every unsynced task once, oldest first. A failing task is
// left unsynced and never stops the others. Concurrent calls run one after
// the other.
func (e *Engine) Drain(ctx context.Context) (report Report) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.notify(&report)

	if !e.signal.Online() {
		report.Offline = true
		log.Debug("sync skipped: offline")
		return
	}

	pending, err := e.outbox.ListPending(ctx)
	if err != nil {
		report.Errors = multierror.Append(report.Errors, err)
		log.Errorf("sync: %v", err)
		return
	}
	report.Pending = len(pending)

	for _, task := range pending {
		if ctx.Err() != nil {
			report.Errors = multierror.Append(report.Errors, ctx.Err())
			break
		}
		if err := e.syncTask(ctx, task); err != nil {
			report.Failed++
			report.Errors = multierror.Append(report.Errors, fmt.Errorf("task %d: %w", task.ID, err))
			log.WithFields(log.Fields{"task": task.ID, "submission": task.SubmissionID}).
				Warnf("sync failed, will retry later: %v", err)
			if err := e.outbox.RecordFailure(ctx, task.ID, err); err != nil {
				log.Errorf("sync: %v", err)
			}
			continue
		}
		report.Synced++
	}

	if e.retention > 0 {
		n, err := e.outbox.Prune(ctx, e.now().Add(-e.retention))
		if err != nil {
			report.Errors = multierror.Append(report.Errors, err)
			log.Errorf("sync: %v", err)
		}
		report.Pruned = n
	}

	if report.Pending > 0 {
		log.Infof("sync: %s", report)
	}
	return
}

func (e *Engine) notify(report *Report) {
	e.listenersMu.Lock()
	listeners := make([]func(Report), len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(*report)
	}
}

func (e *Engine) syncTask(ctx context.Context, task model.OutboxTask) error {
	// an undecodable task must not create a remote submission
	staged, err := stage(task)
	if err != nil {
		return err
	}

	remoteID := task.RemoteSubmissionID
	if remoteID == "" {
		id, err := e.backend.CreateSubmission(ctx, e.submission(task))
		if err != nil {
			return err
		}
		if id == "" {
			return backend.ErrNoSubmissionID
		}
		if err := e.outbox.SetRemoteSubmission(ctx, task.ID, id); err != nil {
			return err
		}
		remoteID = id
	}

	answers, err := e.deliver(ctx, task, remoteID, staged)
	if err != nil {
		return err
	}
	if err := e.backend.InsertAnswers(ctx, answers); err != nil {
		return err
	}
	return e.outbox.MarkSynced(ctx, task.ID)
}

func (e *Engine) submission(task model.OutboxTask) backend.Submission {
	d := task.Payload.Demographics
	sub := backend.Submission{
		StationID:      task.Payload.StationID,
		Resident:       d.Resident,
		IdempotencyKey: task.IdempotencyKey,
	}
	if sub.StationID == "" {
		sub.StationID = model.DefaultStationID
	}
	if code, ok := e.options.GenderCode(d.Gender); ok && code != "" {
		sub.Gender = &code
	}
	if code, ok := e.options.AgeCode(d.Age); ok && code != "" {
		sub.Age = &code
	}
	return sub
}

// stagedAnswer is a decoded attachment waiting for its remote submission.
type stagedAnswer struct {
	answer backend.Answer
	data   []byte
}

// stage decodes every attachment of a task into an answer without the
// remote identifiers.
func stage(task model.OutboxTask) ([]stagedAnswer, error) {
	staged := make([]stagedAnswer, 0, len(task.Payload.Attachments))
	for _, a := range task.Payload.Attachments {
		answer := backend.Answer{
			QuestionNumber: a.Question,
			QuestionKey:    model.QuestionKey(a.Question),
			Type:           string(a.Type),
		}

		var data []byte
		switch a.Type {
		case model.TypeText:
			text, err := attachment.DecodeText(a)
			if err != nil {
				return nil, err
			}
			answer.StoragePath = "inline:" + a.Name
			answer.MimeType = a.Mime
			answer.SizeBytes = len(text)
			answer.TextContent = &text

		case model.TypeAudio:
			mime, raw, err := attachment.DecodeBinary(a)
			if err != nil {
				return nil, err
			}
			answer.MimeType = mime
			answer.SizeBytes = len(raw)
			data = raw

		default:
			return nil, fmt.Errorf("attachment %s: unknown type %q", a.Name, a.Type)
		}

		staged = append(staged, stagedAnswer{answer: answer, data: data})
	}
	return staged, nil
}

// deliver uploads the audio of a task and returns its answers bound to remoteID.
func (e *Engine) deliver(ctx context.Context, task model.OutboxTask, remoteID string, staged []stagedAnswer) ([]backend.Answer, error) {
	station := task.Payload.StationID
	if station == "" {
		station = model.DefaultStationID
	}

	answers := make([]backend.Answer, 0, len(staged))
	for _, st := range staged {
		answer := st.answer
		answer.SubmissionID = remoteID
		if answer.Type == string(model.TypeAudio) {
			path := fmt.Sprintf("%s/%s/q%d.%s", station, remoteID, answer.QuestionNumber, attachment.Extension(answer.MimeType))
			if err := e.backend.Upload(ctx, path, st.data, answer.MimeType); err != nil {
				return nil, err
			}
			answer.StoragePath = path
		}
		answers = append(answers, answer)
	}
	return answers, nil
}
