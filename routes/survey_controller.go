package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/intake-survey/app"
	"github.com/mbolis/intake-survey/httpx"
	"github.com/mbolis/intake-survey/log"
	"github.com/mbolis/intake-survey/routes/middlewares"
	"github.com/mbolis/intake-survey/survey"
)

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveys, err := app.Store.ListSurveys(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func GetSurvey(app app.App) http.HandlerFunc {
	loader := survey.NewLoader(app.Store)

	return func(w http.ResponseWriter, r *http.Request) {
		s, questions, err := loader.Load(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			httpx.LogError(w, "get_survey", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"survey":    s,
			"questions": questions,
		})
	}
}

// StartTraversal opens a traversal of the survey for the user, resuming the
// submission named by the edit or continue query parameter, if any.
func StartTraversal(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middlewares.UserFrom(r.Context())
		identity := app.Sessions.SignIn(user)

		ctrl := survey.NewController(app.Store, identity, survey.Options{
			Debounce:    app.Config.Debounce,
			SavedFlash:  app.Config.SavedFlash,
			SaveTimeout: app.Config.SaveTimeout,
			OnComplete: func(id string) {
				log.WithFields(log.Fields{"submission": id, "user": user.ID}).Info("survey: submission completed")
			},
		})

		err := ctrl.Load(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			httpx.LogError(w, "start_traversal.load", err)
			return
		}

		query := r.URL.Query()
		err = ctrl.Resume(r.Context(), survey.ResumeParams{
			Edit:     query.Get("edit"),
			Continue: query.Get("continue"),
		})
		if err != nil {
			// the traversal starts fresh and the view carries the notice
			log.Debugf("start_traversal.resume: %v", err)
		}

		id, err := app.Traversals.Add(user.ID, identity, ctrl)
		if err != nil {
			ctrl.Close(r.Context())
			httpx.LogError(w, "start_traversal.register", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":   id,
			"view": ctrl.View(),
		})
	}
}

// traversalHandler resolves the traversal in the URL for its owner.
func traversalHandler(app app.App, handle func(w http.ResponseWriter, r *http.Request, ctrl *survey.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middlewares.UserFrom(r.Context())
		id := chi.URLParam(r, "id")

		ctrl, ok := app.Traversals.Get(id, user.ID)
		if !ok {
			httpx.LogNotFound(w, "get_traversal", id)
			return
		}
		handle(w, r, ctrl)
	}
}

func GetTraversal(app app.App) http.HandlerFunc {
	return traversalHandler(app, func(w http.ResponseWriter, r *http.Request, ctrl *survey.Controller) {
		render.JSON(w, r, ctrl.View())
	})
}

type editRequest struct {
	Value any `json:"value"`
}

func EditAnswer(app app.App) http.HandlerFunc {
	return traversalHandler(app, func(w http.ResponseWriter, r *http.Request, ctrl *survey.Controller) {
		req := editRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = ctrl.Edit(req.Value)
		if err != nil {
			httpx.LogError(w, "traversal.edit", err)
			return
		}
		render.JSON(w, r, ctrl.View())
	})
}

type toggleRequest struct {
	Option  string `json:"option" validate:"required"`
	Checked bool   `json:"checked"`
}

func ToggleOption(app app.App) http.HandlerFunc {
	return traversalHandler(app, func(w http.ResponseWriter, r *http.Request, ctrl *survey.Controller) {
		req := toggleRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		err = app.Validator.Struct(req)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "traversal.toggle.validate", "%s", err)
			return
		}

		err = ctrl.Toggle(req.Option, req.Checked)
		if err != nil {
			httpx.LogError(w, "traversal.toggle", err)
			return
		}
		render.JSON(w, r, ctrl.View())
	})
}

type keyRequest struct {
	Key string `json:"key" validate:"required"`
}

func PressKey(app app.App) http.HandlerFunc {
	return traversalHandler(app, func(w http.ResponseWriter, r *http.Request, ctrl *survey.Controller) {
		req := keyRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		err = app.Validator.Struct(req)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "traversal.key.validate", "%s", err)
			return
		}

		handled, err := ctrl.KeyPress(req.Key)
		if err != nil {
			httpx.LogError(w, "traversal.key", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"handled": handled,
			"view":    ctrl.View(),
		})
	})
}

func NextQuestion(app app.App) http.HandlerFunc {
	return traversalHandler(app, func(w http.ResponseWriter, r *http.Request, ctrl *survey.Controller) {
		err := ctrl.Next()
		if err != nil {
			httpx.LogError(w, "traversal.next", err)
			return
		}
		render.JSON(w, r, ctrl.View())
	})
}

func PreviousQuestion(app app.App) http.HandlerFunc {
	return traversalHandler(app, func(w http.ResponseWriter, r *http.Request, ctrl *survey.Controller) {
		ctrl.Retreat()
		render.JSON(w, r, ctrl.View())
	})
}

func CloseTraversal(app app.App) http.HandlerFunc {
	return traversalHandler(app, func(w http.ResponseWriter, r *http.Request, ctrl *survey.Controller) {
		err := app.Traversals.Remove(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogInternalError(w, "traversal.close", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
