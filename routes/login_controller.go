package routes

import (
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/mbolis/intake-survey/app"
	"github.com/mbolis/intake-survey/httpx"
	"github.com/mbolis/intake-survey/log"
	"github.com/mbolis/intake-survey/model"
	"github.com/mbolis/intake-survey/routes/middlewares"
)

var reRefresh = regexp.MustCompile(`(?i)^refresh\s+(.*)`)

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name"`
}

func Signup(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := signupRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		err = app.Validator.Struct(req)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "signup.validate", "%s", err)
			return
		}

		user, err := app.Store.CreateUser(r.Context(), model.User{
			Email:    strings.ToLower(req.Email),
			FullName: req.FullName,
		}, req.Password)
		if err != nil {
			httpx.LogError(w, "signup.create_user", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, user)
	}
}

func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, pass, ok := r.BasicAuth()
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "login.basic_auth")
			return
		}
		email = strings.ToLower(email)

		body := url.Values{
			"grant_type": {"password"},
			"username":   {email},
			"password":   {pass},
		}
		r.Body = io.NopCloser(strings.NewReader(body.Encode()))
		r.Header.Set("content-type", "application/x-www-form-urlencoded")
		r.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

		resp := httpx.NewResponseBuffer()
		app.UserCredentials(resp, r)
		if resp.Status() == http.StatusOK {
			user, err := app.Store.UserByEmail(r.Context(), email)
			if err != nil {
				httpx.LogInternalError(w, "login.get_user", err)
				return
			}
			app.Sessions.SignIn(user)
			log.WithFields(log.Fields{"user": user.ID}).Info("login: signed in")
		}
		resp.Flush(w)
	}
}

func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		match := reRefresh.FindStringSubmatch(r.Header.Get("authorization"))
		if len(match) == 0 {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}

		body := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {match[1]},
		}
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "/", strings.NewReader(body.Encode()))
		if err != nil {
			httpx.LogInternalError(w, "refresh.new_request", err)
			return
		}
		req.Header.Set("content-type", "application/x-www-form-urlencoded")
		req.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

		app.UserCredentials(w, req)
	}
}

// Logout revokes the refresh tokens of the user and closes their traversals.
func Logout(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middlewares.UserFrom(r.Context())

		err := app.Store.RevokeTokens(r.Context(), user.Email)
		if err != nil {
			httpx.LogInternalError(w, "logout.revoke_tokens", err)
			return
		}
		app.Sessions.SignOut(user.ID)

		w.WriteHeader(http.StatusNoContent)
	}
}
