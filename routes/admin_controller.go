package routes

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/intake-survey/app"
	"github.com/mbolis/intake-survey/httpx"
	"github.com/mbolis/intake-survey/log"
	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/routes/middlewares"
)

var reNoIdent = regexp.MustCompile(`\W+`)

type questionRequest struct {
	Text     string         `json:"question_text" validate:"required"`
	HelpText string         `json:"help_text"`
	Kind     string         `json:"input_type" validate:"required,oneof=text number date select radio checkbox"`
	Options  []model.Option `json:"options" validate:"dive"`
	Required bool           `json:"required"`
}

type surveyRequest struct {
	Slug        string            `json:"slug"`
	Title       string            `json:"title" validate:"required"`
	Description string            `json:"description"`
	Questions   []questionRequest `json:"questions" validate:"dive"`
}

// slugify derives a URL slug from a survey title.
func slugify(title string) string {
	slug := strings.ToLower(title)
	slug = reNoIdent.ReplaceAllLiteralString(slug, " ")
	return strings.Join(strings.Fields(slug), "-")
}

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middlewares.UserFrom(r.Context())

		req := surveyRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		err = app.Validator.Struct(req)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_survey.validate", "%s", err)
			return
		}

		slug := req.Slug
		if slug == "" {
			slug = slugify(req.Title)
		}
		if slug == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_survey.validate", "no slug can be derived from %q", req.Title)
			return
		}

		questions := make([]model.Question, len(req.Questions))
		for i, q := range req.Questions {
			kind := model.InputKind(q.Kind)
			if kind.IsChoice() && len(q.Options) == 0 {
				httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_survey.validate", "question %d: %s needs options", i+1, kind)
				return
			}
			questions[i] = model.Question{
				Order:    i + 1,
				Text:     q.Text,
				HelpText: q.HelpText,
				Kind:     kind,
				Options:  q.Options,
				Required: q.Required,
			}
		}

		survey, _, err := app.Store.CreateSurvey(r.Context(), model.Survey{
			Slug:        slug,
			Title:       req.Title,
			Description: req.Description,
			CreatedBy:   user.ID,
		}, questions)
		if err != nil {
			httpx.LogError(w, "create_survey", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":   survey.ID,
			"slug": survey.Slug,
		})
	}
}

func ListSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissions, err := app.Store.ListSubmissions(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.get_submissions", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"submissions": submissions,
		})
	}
}

// SetAssessment attaches a care assessment to a submission.
func SetAssessment(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assessment := model.Assessment{}
		err := render.DecodeJSON(r.Body, &assessment)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		err = app.Validator.Struct(assessment)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "set_assessment.validate", "%s", err)
			return
		}

		id := chi.URLParam(r, "id")
		err = app.Store.SetAssessment(r.Context(), id, assessment)
		if err != nil {
			httpx.LogError(w, "set_assessment", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
