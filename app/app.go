package app

import (
	"database/sql"

	"github.com/go-chi/oauth"

	"github.com/mbolis/survey-kiosk/config"
	"github.com/mbolis/survey-kiosk/kiosk"
	"github.com/mbolis/survey-kiosk/model"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config

	Kiosk   *kiosk.Service
	Options model.DemographicOptions
}
