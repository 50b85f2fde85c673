package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbolis/intake-survey/app"
	"github.com/mbolis/intake-survey/routes/middlewares"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))
	root.Handle("/metrics", promhttp.Handler())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Post("/signup", Signup(app))
	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))
	api.Get("/health", Health(app))

	api.Group(func(r chi.Router) {
		r.Use(middlewares.Authenticated(app.TokenSecret))

		r.Post("/logout", Logout(app))

		r.Get("/surveys", ListSurveys(app))
		r.Get("/surveys/{slug}", GetSurvey(app))
		r.Post("/surveys/{slug}/traversals", StartTraversal(app))

		r.Route("/traversals/{id}", func(r chi.Router) {
			r.Get("/", GetTraversal(app))
			r.Put("/value", EditAnswer(app))
			r.Post("/toggle", ToggleOption(app))
			r.Post("/keys", PressKey(app))
			r.Post("/next", NextQuestion(app))
			r.Post("/prev", PreviousQuestion(app))
			r.Delete("/", CloseTraversal(app))
		})

		r.Get("/submissions", ListOwnSubmissions(app))
		r.Delete("/submissions/{id}", DeleteSubmission(app))
		r.Get("/submissions/{id}/review", ReviewSubmission(app))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewares.Admin)

			r.Get("/submissions", ListSubmissions(app))
			r.Put("/submissions/{id}/assessment", SetAssessment(app))
			r.Post("/surveys", CreateSurvey(app))
		})
	})

	return api
}

// Health reports whether the database answers.
func Health(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := app.PingContext(r.Context())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
