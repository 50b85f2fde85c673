package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"
	"github.com/mbolis/intake-survey/model"
)

type userKey struct{}

func WithUser(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the user authenticated by Authenticated.
func UserFrom(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(userKey{}).(model.User)
	return user, ok
}

// Authenticated middleware to check an OAuth bearer token and put its user in the context.
func Authenticated(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(oauth.Authorize(secret, nil), claimsUser).Handler(next)
	}
}

func claimsUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(oauth.ClaimsContext).(map[string]string)
		if claims["sub"] == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		user := model.User{
			ID:    claims["sub"],
			Email: claims["email"],
			Role:  model.RoleUser,
		}
		for _, role := range strings.Split(claims["roles"], ",") {
			if role == string(model.RoleAdmin) {
				user.Role = model.RoleAdmin
				break
			}
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Admin middleware to check for the 'admin' role of the authenticated user.
func Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFrom(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if !user.IsAdmin() {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
