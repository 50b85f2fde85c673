package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/intake-survey/app"
	"github.com/mbolis/intake-survey/httpx"
	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/review"
	"github.com/mbolis/intake-survey/routes/middlewares"
	"github.com/mbolis/intake-survey/survey"
)

type submissionItem struct {
	model.SubmissionSummary
	ResumeURL string `json:"resume_url"`
}

// ListOwnSubmissions is the dashboard history of the user.
func ListOwnSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middlewares.UserFrom(r.Context())

		summaries, err := app.Store.UserSubmissions(r.Context(), user.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_user_submissions", err)
			return
		}

		submissions := make([]submissionItem, len(summaries))
		for i, s := range summaries {
			submissions[i] = submissionItem{
				SubmissionSummary: s,
				ResumeURL:         survey.ResumeURL(s.Survey.Slug, s.Submission),
			}
		}

		render.JSON(w, r, map[string]any{
			"submissions": submissions,
		})
	}
}

func DeleteSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middlewares.UserFrom(r.Context())
		id := chi.URLParam(r, "id")

		err := app.Store.DeleteSubmission(r.Context(), id, user.ID)
		if err != nil {
			httpx.LogError(w, "delete_submission", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func ReviewSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middlewares.UserFrom(r.Context())

		rv, err := review.Build(r.Context(), app.Store, chi.URLParam(r, "id"), user)
		if err != nil {
			httpx.LogError(w, "review_submission", err)
			return
		}

		render.JSON(w, r, rv)
	}
}
