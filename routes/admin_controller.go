package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/survey-kiosk/app"
	"github.com/mbolis/survey-kiosk/attachment"
	"github.com/mbolis/survey-kiosk/httpx"
	"github.com/mbolis/survey-kiosk/log"
	"github.com/mbolis/survey-kiosk/model"
	"github.com/mbolis/survey-kiosk/syncer"
)

func ListOutbox(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pendingOnly, _ := strconv.ParseBool(r.URL.Query().Get("pending"))

		tasks, err := app.Kiosk.Outbox(r.Context(), pendingOnly)
		if err != nil {
			httpx.LogInternalError(w, "kiosk.outbox", err)
			return
		}

		// payloads carry the recordings; the listing only needs their metadata
		for i := range tasks {
			tasks[i].Payload.Attachments = attachment.Metadata(tasks[i].Payload.Attachments)
		}
		if tasks == nil {
			tasks = []model.OutboxTask{}
		}

		render.JSON(w, r, map[string]any{
			"tasks": tasks,
		})
	}
}

func ListSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := app.Kiosk.Submissions(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "kiosk.submissions", err)
			return
		}
		if records == nil {
			records = []model.SubmissionRecord{}
		}

		render.JSON(w, r, map[string]any{
			"submissions": records,
		})
	}
}

// GetFile serves a stored attachment decoded to its original bytes.
func GetFile(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		file, ok, err := app.Kiosk.File(r.Context(), name)
		if err != nil {
			httpx.LogInternalError(w, "kiosk.file", err)
			return
		}
		if !ok {
			httpx.LogNotFound(w, "kiosk.file", name)
			return
		}

		mime, data, err := attachment.DecodeBinary(file)
		if err != nil {
			httpx.LogInternalError(w, "kiosk.file.decode", err)
			return
		}

		w.Header().Set("content-type", mime)
		w.Header().Set("content-length", strconv.Itoa(len(data)))
		w.Write(data)
	}
}

func PruneOutbox(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		before, err := time.Parse(time.RFC3339, r.URL.Query().Get("before"))
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.query.before", "before must be an RFC 3339 time")
			return
		}

		n, err := app.Kiosk.PruneOutbox(r.Context(), before)
		if err != nil {
			httpx.LogStorageError(w, "kiosk.prune_outbox", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"pruned": n,
		})
	}
}

type syncReport struct {
	Offline bool     `json:"offline"`
	Pending int      `json:"pending"`
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Pruned  int      `json:"pruned"`
	Errors  []string `json:"errors"`
}

func newSyncReport(r syncer.Report) syncReport {
	out := syncReport{
		Offline: r.Offline,
		Pending: r.Pending,
		Synced:  r.Synced,
		Failed:  r.Failed,
		Pruned:  r.Pruned,
		Errors:  []string{},
	}
	if r.Errors != nil {
		for _, err := range r.Errors.Errors {
			out.Errors = append(out.Errors, err.Error())
		}
	}
	return out
}

// SyncNow runs a drain pass and answers with its report.
func SyncNow(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := app.Kiosk.SyncOutbox(r.Context())
		render.JSON(w, r, newSyncReport(report))
	}
}
