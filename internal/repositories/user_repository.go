package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"amici-chat/internal/models"
)

// UserRepository reads profiles owned by the auth service.
type UserRepository interface {
	Exists(ctx context.Context, userID string) (bool, error)
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)
	SearchUsers(ctx context.Context, query string, excludeIDs []string, limit int) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, email, first_name, last_name, image, color, profile_setup`

// Exists reports whether a profile with this id is known.
func (r *UserRepo) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID)
	if isInvalidID(err) {
		return false, nil
	}
	return exists, err
}

// GetUsers fetches the known profiles among ids.
func (r *UserRepo) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if isInvalidID(err) {
		return nil, fmt.Errorf("%w: malformed user id", ErrValidation)
	}
	return users, err
}

// SearchUsers matches first name, last name or email case-insensitively,
// skipping excludeIDs.
func (r *UserRepo) SearchUsers(ctx context.Context, query string, excludeIDs []string, limit int) ([]models.User, error) {
	users := []models.User{}
	if excludeIDs == nil {
		excludeIDs = []string{}
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users
        WHERE NOT (id = ANY($1::uuid[]))
        AND (first_name ILIKE $2 OR last_name ILIKE $2 OR email ILIKE $2)
        ORDER BY first_name ASC, last_name ASC, email ASC
        LIMIT $3`, pq.Array(excludeIDs), pattern, limit)
	if isInvalidID(err) {
		return nil, fmt.Errorf("%w: malformed user id", ErrValidation)
	}
	return users, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
