package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/oauth"
	"github.com/mbolis/intake-survey/config"
	"github.com/mbolis/intake-survey/log"
	"github.com/mbolis/intake-survey/store"
	"github.com/pkg/errors"
)

const refreshTokenTTL = 8760 * time.Hour

var errRefresh = errors.New("could not refresh")

type credentialsVerifier struct {
	store *store.Store
	now   func() time.Time
}

func CredentialsVerifier(s *store.Store) oauth.CredentialsVerifier {
	return &credentialsVerifier{store: s, now: time.Now}
}

// NewBearerServer issues and refreshes tokens for users identified by email.
func NewBearerServer(s *store.Store, cfg config.Config) *oauth.BearerServer {
	return oauth.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, CredentialsVerifier(s), nil)
}

func (cs *credentialsVerifier) ValidateUser(username string, password string, scope string, r *http.Request) error {
	err := cs.store.CheckPassword(r.Context(), username, password)
	if err != nil {
		log.Debugf("login.validate_user %q: %v", username, err)
	}
	return err
}

func (cs *credentialsVerifier) StoreTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	return cs.store.StoreToken(context.Background(), credential, tokenID, refreshTokenID, cs.now().Add(refreshTokenTTL))
}

func (cs *credentialsVerifier) ValidateTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	expiration, err := cs.store.ConsumeToken(context.Background(), credential, tokenID, refreshTokenID)
	if err != nil {
		log.Debugf("refresh.validate_token %q: %v", credential, err)
		return errRefresh
	}
	if expiration.Before(cs.now()) {
		return errRefresh
	}
	return nil
}

// AddClaims puts the user id, email and role in every issued token.
func (cs *credentialsVerifier) AddClaims(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	user, err := cs.store.UserByEmail(r.Context(), credential)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"sub":   user.ID,
		"email": user.Email,
		"roles": string(user.Role),
	}, nil
}

func (*credentialsVerifier) AddProperties(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{}, nil
}

func (*credentialsVerifier) ValidateClient(clientID string, clientSecret string, scope string, r *http.Request) error {
	return errors.New("not supported")
}
