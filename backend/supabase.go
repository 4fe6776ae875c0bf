package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Supabase talks to a Supabase project: the submit_survey RPC and the
// answers table through PostgREST, audio through Storage.
type Supabase struct {
	baseURL string
	key     string
	bucket  string
	client  *http.Client
}

var _ Backend = (*Supabase)(nil)

func NewSupabase(baseURL, key, bucket string, client *http.Client) *Supabase {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Supabase{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		bucket:  bucket,
		client:  client,
	}
}

type submitSurveyArgs struct {
	StationID string  `json:"station_id_arg"`
	Gender    *string `json:"gender_arg,omitempty"`
	Age       *string `json:"age_arg,omitempty"`
	Resident  *bool   `json:"resident_arg,omitempty"`
}

func (s *Supabase) CreateSubmission(ctx context.Context, sub Submission) (string, error) {
	body, err := json.Marshal(submitSurveyArgs{
		StationID: sub.StationID,
		Gender:    sub.Gender,
		Age:       sub.Age,
		Resident:  sub.Resident,
	})
	if err != nil {
		return "", err
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/rest/v1/rpc/submit_survey", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")
	if sub.IdempotencyKey != "" {
		req.Header.Set("idempotency-key", sub.IdempotencyKey)
	}

	respBody, err := s.do(req, "create_submission")
	if err != nil {
		return "", err
	}

	// the RPC returns the new uuid as a JSON string
	var id string
	if err := json.Unmarshal(respBody, &id); err != nil {
		return "", fmt.Errorf("backend create_submission: %w: %s", ErrNoSubmissionID, respBody)
	}
	if id == "" {
		return "", fmt.Errorf("backend create_submission: %w", ErrNoSubmissionID)
	}
	return id, nil
}

func (s *Supabase) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	endpoint := "/storage/v1/object/" + url.PathEscape(s.bucket) + "/" + escapePath(path)
	req, err := s.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", contentType)
	req.Header.Set("x-upsert", "true")

	_, err = s.do(req, "upload")
	return err
}

func (s *Supabase) InsertAnswers(ctx context.Context, answers []Answer) error {
	if len(answers) == 0 {
		return nil
	}
	body, err := json.Marshal(answers)
	if err != nil {
		return err
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/rest/v1/answers", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("prefer", "return=minimal")

	_, err = s.do(req, "insert_answers")
	return err
}

func (s *Supabase) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("authorization", "Bearer "+s.key)
	return req, nil
}

func (s *Supabase) do(req *http.Request, op string) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("backend %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
