// Package backend is the remote side of the outbox: it creates submissions,
// stores audio blobs and records answers.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Submission is the remote submission entity created once per delivered
// survey. Nil fields are sent as absent.
type Submission struct {
	StationID      string
	Gender         *string
	Age            *string
	Resident       *bool
	IdempotencyKey string
}

type Answer struct {
	SubmissionID    string   `json:"submission_id"`
	QuestionNumber  int      `json:"question_number"`
	QuestionKey     string   `json:"question_key"`
	Type            string   `json:"type"`
	StoragePath     string   `json:"storage_path"`
	MimeType        string   `json:"mime_type,omitempty"`
	SizeBytes       int      `json:"size_bytes"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	TextContent     *string  `json:"text_content,omitempty"`
}

// Uploader stores a blob under path, replacing any existing blob.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
}

type Backend interface {
	Uploader

	// CreateSubmission atomically creates a submission and returns its id.
	CreateSubmission(ctx context.Context, s Submission) (string, error)

	// InsertAnswers records a batch of answers; the batch succeeds or
	// fails as a whole.
	InsertAnswers(ctx context.Context, answers []Answer) error
}

var ErrNoSubmissionID = errors.New("backend returned no submission id")

// RemoteError is a rejected backend call.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.Status, e.Body)
}

// withUploader routes uploads to a separate blob store.
type withUploader struct {
	Backend
	uploader Uploader
}

func (b withUploader) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	return b.uploader.Upload(ctx, path, data, contentType)
}

// WithUploader returns b with uploads sent to u instead.
func WithUploader(b Backend, u Uploader) Backend {
	return withUploader{Backend: b, uploader: u}
}
