package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbolis/survey-kiosk/app"
	"github.com/mbolis/survey-kiosk/log"
	"github.com/mbolis/survey-kiosk/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(
		middleware.RequestID,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.Logger, NoColor: true}),
		middleware.Recoverer,
	)

	root.Mount("/api", apiRouter(app))
	root.Mount("/", servePublicFiles(app.PublicDir))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Post("/submissions", SubmitSurvey(app))
	api.Get("/count/today", TodayCount(app))
	api.Get("/status", GetStatus(app))
	api.Post("/sync", RequestSync(app))
	api.Get("/demographics", GetDemographics(app))
	api.Get("/events", StatusEvents(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret))

		r.Get("/outbox", ListOutbox(app))
		r.Post("/outbox/prune", PruneOutbox(app))
		r.Post("/sync", SyncNow(app))
		r.Get("/submissions", ListSubmissions(app))
		r.Get("/files/{name}", GetFile(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

func servePublicFiles(dir string) http.Handler {
	return http.FileServer(http.Dir(dir))
}
