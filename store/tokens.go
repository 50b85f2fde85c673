package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

func (s *Store) StoreToken(ctx context.Context, username, tokenID, refreshTokenID string, expiration time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token (username, token_id, refresh_token_id, expiration)
		VALUES (?, ?, ?, ?)`,
		username,
		tokenID,
		refreshTokenID,
		expiration,
	)
	return errors.Wrap(err, "db.insert_token")
}

// ConsumeToken deletes a refresh token pair and returns its expiration.
// Each pair can be consumed once.
func (s *Store) ConsumeToken(ctx context.Context, username, tokenID, refreshTokenID string) (time.Time, error) {
	var expiration time.Time
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM token
		WHERE username = ?
			AND token_id = ?
			AND refresh_token_id = ?
		RETURNING expiration`,
		username,
		tokenID,
		refreshTokenID,
	).Scan(&expiration)
	if err != nil {
		return time.Time{}, notFound(err, "db.consume_token")
	}
	return expiration, nil
}
