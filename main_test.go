package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/survey-kiosk/model"
)

func TestPrintOutbox(t *testing.T) {
	created := time.Date(2025, 1, 1, 9, 30, 0, 0, time.Local).UnixMilli()
	synced := created + 60_000

	tasks := []model.OutboxTask{
		{
			ID:           1,
			SubmissionID: 1,
			Payload: model.Payload{SurveyData: model.SurveyData{
				StationID:    "TOTEM-1",
				Demographics: model.Demographics{Gender: "Feminino", Age: "26 a 35 anos"},
			}},
			CreatedAt: created,
			SyncedAt:  &synced,
			Synced:    true,
		},
		{
			ID:           2,
			SubmissionID: 2,
			Payload:      model.Payload{SurveyData: model.SurveyData{StationID: "TOTEM-1"}},
			CreatedAt:    created,
			Attempts:     2,
			LastError:    "backend rpc: status 503",
		},
	}

	var out bytes.Buffer
	require.NoError(t, printOutbox(&out, tasks))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))

	assert.Contains(t, lines[1], "Feminino")
	assert.Contains(t, lines[1], "26 a 35 anos")
	assert.Contains(t, lines[1], "2025-01-01 09:31:00")

	assert.Contains(t, lines[2], "backend rpc: status 503")
	assert.Equal(t, 3, strings.Count(lines[2], " - "), "missing values print as dashes")
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
}
