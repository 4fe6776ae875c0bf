package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/mbolis/survey-kiosk/app"
	"github.com/mbolis/survey-kiosk/attachment"
	"github.com/mbolis/survey-kiosk/httpx"
	"github.com/mbolis/survey-kiosk/log"
	"github.com/mbolis/survey-kiosk/model"
)

// maxSubmissionBytes bounds a submission body; three recorded answers
// encoded as data URLs stay well below it.
var maxSubmissionBytes int64 = 64 << 20

func SubmitSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)

		data := model.SurveyData{}
		err := render.DecodeJSON(r.Body, &data)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpx.LogStatus(w, http.StatusRequestEntityTooLarge, log.DebugLevel, "request.body_too_large")
				return
			}
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if err := app.Options.Validate(data.Demographics); err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.demographics", "%s", err)
			return
		}
		if err := attachment.CheckResponses(data.Responses); err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.responses", "%s", err)
			return
		}
		if strings.TrimSpace(data.StationID) == "" {
			data.StationID = app.StationID
		}

		id, err := app.Kiosk.Submit(r.Context(), data)
		if err != nil {
			httpx.LogStorageError(w, "kiosk.submit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": id,
		})
	}
}

func TodayCount(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := app.Kiosk.TodayCount(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "kiosk.today_count", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"count": count,
		})
	}
}

func GetStatus(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := app.Kiosk.Status(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "kiosk.status", err)
			return
		}

		render.JSON(w, r, status)
	}
}

// RequestSync queues a drain pass and returns at once.
func RequestSync(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app.Kiosk.RequestSync()
		w.WriteHeader(http.StatusAccepted)
	}
}

func GetDemographics(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, app.Options)
	}
}
