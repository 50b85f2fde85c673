package store

import (
	"context"

	"github.com/mbolis/intake-survey/model"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

func (s *Store) CreateUser(ctx context.Context, user model.User, password string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, errors.Wrap(err, "db.insert_user.hash")
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	user.ID = newID()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user (id, email, full_name, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.FullName,
		hash,
		string(user.Role),
		s.now(),
	)
	if err != nil {
		return model.User{}, conflict(err, "db.insert_user")
	}
	return user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	user := model.User{}
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role
		FROM user
		WHERE email = ?`,
		email,
	).Scan(&user.ID, &user.Email, &user.FullName, &role)
	if err != nil {
		return model.User{}, notFound(err, "db.get_user")
	}
	user.Role = model.Role(role)
	return user, nil
}

// CheckPassword verifies the password of the user registered with email.
func (s *Store) CheckPassword(ctx context.Context, email, password string) error {
	var hash []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT password_hash
		FROM user
		WHERE email = ?`,
		email,
	).Scan(&hash)
	if err != nil {
		return notFound(err, "db.get_password")
	}
	return errors.Wrap(bcrypt.CompareHashAndPassword(hash, []byte(password)), "db.check_password")
}

// RevokeTokens forgets every refresh token issued to the user.
func (s *Store) RevokeTokens(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM token WHERE username = ?`, email)
	return errors.Wrap(err, "db.revoke_tokens")
}
