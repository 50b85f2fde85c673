package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/go-playground/validator/v10"
	"github.com/mbolis/intake-survey/config"
	"github.com/mbolis/intake-survey/httpx"
	"github.com/mbolis/intake-survey/session"
	"github.com/mbolis/intake-survey/store"
	"github.com/mbolis/intake-survey/survey"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config

	Store      *store.Store
	Sessions   *session.Hub
	Traversals *survey.Registry
	Validator  *validator.Validate
}

func New(db *sql.DB, cfg config.Config) App {
	s := store.New(db)
	return App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(s, cfg),
		Config:       cfg,
		Store:        s,
		Sessions:     session.NewHub(),
		Traversals:   survey.NewRegistry(),
		Validator:    validator.New(),
	}
}
