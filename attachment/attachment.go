// Package attachment turns survey responses into named data-URL attachments
// and decodes them again for upload.
package attachment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vincent-petithory/dataurl"

	"github.com/mbolis/survey-kiosk/model"
)

const (
	MimeText  = "text/plain"
	MimeAudio = "audio/webm"
)

var ErrWrongType = errors.New("attachment: wrong type")

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// BaseName is the prefix shared by every attachment of a submission.
func BaseName(data model.SurveyData, now time.Time) string {
	station := data.StationID
	if station == "" {
		station = model.DefaultStationID
	}
	ts := data.Timestamp
	if ts == "" {
		ts = now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return station + "_" + timestampReplacer.Replace(ts)
}

// Name builds the deterministic attachment name for one question and kind.
func Name(base string, question int, kind model.AttachmentType) string {
	ext := "webm"
	if kind == model.TypeText {
		ext = "txt"
	}
	return fmt.Sprintf("%s_q%d_%s.%s", base, question, kind, ext)
}

// Encode builds the attachments of every answered question, in question
// order, text before audio. Encoding the same data twice yields the same
// names, so a re-encode overwrites rather than duplicates.
func Encode(data model.SurveyData, now time.Time) []model.Attachment {
	base := BaseName(data, now)
	createdAt := now.UnixMilli()

	var out []model.Attachment
	for q := 1; q <= len(model.QuestionKeys); q++ {
		resp, _ := data.Responses.ByQuestion(q)
		if resp.Text != "" {
			out = append(out, model.Attachment{
				Name:      Name(base, q, model.TypeText),
				Data:      dataurl.New([]byte(resp.Text), MimeText, "charset", "utf-8").String(),
				Mime:      MimeText,
				Type:      model.TypeText,
				Question:  q,
				CreatedAt: createdAt,
			})
		}
		if resp.Audio != nil && *resp.Audio != "" {
			out = append(out, model.Attachment{
				Name:      Name(base, q, model.TypeAudio),
				Data:      *resp.Audio,
				Mime:      MimeAudio,
				Type:      model.TypeAudio,
				Question:  q,
				CreatedAt: createdAt,
			})
		}
	}
	return out
}

// CheckResponses reports the first recorded answer that is not a decodable
// data URL. Such an answer could be stored but never uploaded.
func CheckResponses(r model.Responses) error {
	for q := 1; q <= len(model.QuestionKeys); q++ {
		resp, _ := r.ByQuestion(q)
		if resp.Audio == nil || *resp.Audio == "" {
			continue
		}
		if _, err := dataurl.DecodeString(*resp.Audio); err != nil {
			return fmt.Errorf("question %d: audio is not a data URL: %w", q, err)
		}
	}
	return nil
}

// Metadata drops the payloads, keeping what a submission record lists.
func Metadata(list []model.Attachment) []model.Attachment {
	out := make([]model.Attachment, len(list))
	for i, a := range list {
		a.Data = ""
		out[i] = a
	}
	return out
}

// DecodeText returns the original text of a text attachment.
func DecodeText(a model.Attachment) (string, error) {
	if a.Type != model.TypeText {
		return "", fmt.Errorf("%w: %s is %s", ErrWrongType, a.Name, a.Type)
	}
	du, err := dataurl.DecodeString(a.Data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", a.Name, err)
	}
	return string(du.Data), nil
}

// DecodeBinary returns the payload bytes and the media type declared by the
// data URL, falling back to the attachment mime.
func DecodeBinary(a model.Attachment) (mime string, data []byte, err error) {
	du, err := dataurl.DecodeString(a.Data)
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", a.Name, err)
	}
	mime = du.MediaType.ContentType()
	if mime == "" || mime == "text/plain" && a.Type == model.TypeAudio {
		mime = a.Mime
	}
	return mime, du.Data, nil
}

// Extension picks a file extension for an uploaded payload.
func Extension(mime string) string {
	switch {
	case strings.HasPrefix(mime, "audio/webm"):
		return "webm"
	case strings.HasPrefix(mime, "audio/ogg"):
		return "ogg"
	case strings.HasPrefix(mime, "audio/mp4"):
		return "m4a"
	case strings.HasPrefix(mime, "audio/mpeg"):
		return "mp3"
	case strings.HasPrefix(mime, "audio/wav"):
		return "wav"
	case strings.HasPrefix(mime, "text/"):
		return "txt"
	}
	return "bin"
}
