package attachment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/survey-kiosk/model"
)

var now = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

func audio(s string) *string { return &s }

func TestEncode_ExampleSubmission(t *testing.T) {
	data := model.SurveyData{
		Timestamp: "2025-03-14T09:26:53.589Z",
		StationID: "TOTEM-1",
		Responses: model.Responses{
			FutureVision: model.Response{Text: "x"},
			MagicWand:    model.Response{Audio: audio("data:audio/webm;base64,AA==")},
		},
	}

	list := Encode(data, now)
	require.Len(t, list, 2)

	text, rec := list[0], list[1]
	assert.Equal(t, "TOTEM-1_2025-03-14T09-26-53-589Z_q1_text.txt", text.Name)
	assert.Equal(t, model.TypeText, text.Type)
	assert.Equal(t, MimeText, text.Mime)
	assert.Equal(t, 1, text.Question)
	assert.True(t, strings.HasPrefix(text.Data, "data:text/plain;"), text.Data)
	assert.Equal(t, now.UnixMilli(), text.CreatedAt)

	assert.Equal(t, "TOTEM-1_2025-03-14T09-26-53-589Z_q2_audio.webm", rec.Name)
	assert.Equal(t, model.TypeAudio, rec.Type)
	assert.Equal(t, MimeAudio, rec.Mime)
	assert.Equal(t, 2, rec.Question)
	assert.Equal(t, "data:audio/webm;base64,AA==", rec.Data)
}

func TestEncode_TextRoundTripMultibyte(t *testing.T) {
	for _, text := range []string{"olá", "Não-binário ✓ 🌳", "line1\nline2"} {
		data := model.SurveyData{
			Timestamp: "2025-03-14T09:26:53.589Z",
			Responses: model.Responses{WhatIsMissing: model.Response{Text: text}},
		}
		list := Encode(data, now)
		require.Len(t, list, 1)

		got, err := DecodeText(list[0])
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestEncode_BothKindsForOneQuestion(t *testing.T) {
	data := model.SurveyData{
		Timestamp: "t",
		StationID: "S",
		Responses: model.Responses{
			MagicWand: model.Response{Text: "wand", Audio: audio("data:audio/webm;base64,AA==")},
		},
	}
	list := Encode(data, now)
	require.Len(t, list, 2)
	assert.Equal(t, "S_t_q2_text.txt", list[0].Name)
	assert.Equal(t, "S_t_q2_audio.webm", list[1].Name)
}

func TestEncode_SkipsEmptyResponses(t *testing.T) {
	data := model.SurveyData{
		Timestamp: "t",
		Responses: model.Responses{FutureVision: model.Response{Audio: audio("")}},
	}
	assert.Empty(t, Encode(data, now))
}

func TestEncode_Deterministic(t *testing.T) {
	data := model.SurveyData{
		Timestamp: "2025-01-01T00:00:00.000Z",
		StationID: "TOTEM-2",
		Responses: model.Responses{FutureVision: model.Response{Text: "a"}},
	}
	first := Encode(data, now)
	second := Encode(data, now.Add(time.Hour))
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.Equal(t, first[0].Data, second[0].Data)
}

func TestBaseName_Defaults(t *testing.T) {
	base := BaseName(model.SurveyData{}, now)
	assert.Equal(t, "TOTEM-1_2025-03-14T09-26-53-589Z", base)
}

func TestMetadata_DropsPayload(t *testing.T) {
	list := []model.Attachment{{Name: "a", Data: "data:,x", Type: model.TypeText}}
	meta := Metadata(list)
	assert.Empty(t, meta[0].Data)
	assert.Equal(t, "a", meta[0].Name)
	assert.Equal(t, "data:,x", list[0].Data, "input must not be modified")
}

func TestDecodeText_RejectsAudio(t *testing.T) {
	_, err := DecodeText(model.Attachment{Name: "a", Type: model.TypeAudio, Data: "data:audio/webm;base64,AA=="})
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestDecodeBinary(t *testing.T) {
	mime, data, err := DecodeBinary(model.Attachment{
		Type: model.TypeAudio,
		Mime: MimeAudio,
		Data: "data:audio/webm;base64,AAEC",
	})
	require.NoError(t, err)
	assert.Equal(t, "audio/webm", mime)
	assert.Equal(t, []byte{0, 1, 2}, data)

	_, _, err = DecodeBinary(model.Attachment{Name: "bad", Data: "not a data url"})
	assert.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "webm", Extension("audio/webm;codecs=opus"))
	assert.Equal(t, "ogg", Extension("audio/ogg"))
	assert.Equal(t, "txt", Extension("text/plain"))
	assert.Equal(t, "bin", Extension("application/octet-stream"))
}

func TestCheckResponses(t *testing.T) {
	good := "data:audio/webm;base64,b3B1cw=="
	bad := "AAAA-not-a-data-url"

	assert.NoError(t, CheckResponses(model.Responses{}))
	assert.NoError(t, CheckResponses(model.Responses{
		FutureVision:  model.Response{Text: "not checked"},
		MagicWand:     model.Response{Audio: &good},
		WhatIsMissing: model.Response{Audio: audio("")},
	}))

	err := CheckResponses(model.Responses{
		FutureVision:  model.Response{Audio: &good},
		WhatIsMissing: model.Response{Audio: &bad},
	})
	assert.ErrorContains(t, err, "question 3")
}
