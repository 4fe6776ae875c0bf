package model

// Question keys of the three fixed survey questions, in question order.
const (
	FutureVision  = "future_vision"
	MagicWand     = "magic_wand"
	WhatIsMissing = "what_is_missing"
)

const DefaultStationID = "TOTEM-1"

var QuestionKeys = [...]string{FutureVision, MagicWand, WhatIsMissing}

// QuestionKey maps a question number (1-based) to its key, or "" when out of range.
func QuestionKey(question int) string {
	if question < 1 || question > len(QuestionKeys) {
		return ""
	}
	return QuestionKeys[question-1]
}

type SurveyData struct {
	Timestamp    string       `json:"timestamp"`
	StationID    string       `json:"station_id"`
	Demographics Demographics `json:"demographics"`
	Responses    Responses    `json:"responses"`
}

type Demographics struct {
	Gender   string `json:"gender,omitempty"`
	Age      string `json:"age,omitempty"`
	Resident *bool  `json:"resident,omitempty"`
}

type Responses struct {
	FutureVision  Response `json:"future_vision"`
	MagicWand     Response `json:"magic_wand"`
	WhatIsMissing Response `json:"what_is_missing"`
}

// ByQuestion returns the response for a question number (1-based).
func (r Responses) ByQuestion(question int) (Response, bool) {
	switch question {
	case 1:
		return r.FutureVision, true
	case 2:
		return r.MagicWand, true
	case 3:
		return r.WhatIsMissing, true
	}
	return Response{}, false
}

// Response holds either a typed answer or a recorded one. Audio is a
// base64 data URL.
type Response struct {
	Text  string  `json:"text,omitempty"`
	Audio *string `json:"audio,omitempty"`
}

type AttachmentType string

const (
	TypeText  AttachmentType = "text"
	TypeAudio AttachmentType = "audio"
)

// Attachment is an encoded response payload. Data is a data URL; it is
// empty in the metadata copy kept on the submission record.
type Attachment struct {
	Name      string         `json:"name"`
	Data      string         `json:"data,omitempty"`
	Mime      string         `json:"mime"`
	Type      AttachmentType `json:"type"`
	Question  int            `json:"question"`
	CreatedAt int64          `json:"createdAt"`
}

type SubmissionRecord struct {
	ID int64 `json:"id"`
	SurveyData
	Attachments []Attachment `json:"attachments"`
	SavedAt     string       `json:"savedAt"`
}

// Payload is what an outbox task replays against the backend.
type Payload struct {
	SurveyData
	Attachments []Attachment `json:"attachments"`
}

type OutboxTask struct {
	ID             int64   `json:"id"`
	SubmissionID   int64   `json:"submissionId"`
	IdempotencyKey string  `json:"idempotencyKey"`
	Payload        Payload `json:"payload"`
	Synced         bool    `json:"synced"`
	CreatedAt      int64   `json:"createdAt"`
	SyncedAt       *int64  `json:"syncedAt,omitempty"`

	// RemoteSubmissionID is checkpointed once the backend created the
	// submission entity, so retries resume with answer insertion.
	RemoteSubmissionID string `json:"remoteSubmissionId,omitempty"`
	Attempts           int    `json:"attempts"`
	LastError          string `json:"lastError,omitempty"`
	LastAttemptAt      *int64 `json:"lastAttemptAt,omitempty"`
}
