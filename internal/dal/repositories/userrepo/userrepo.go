package userrepo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/user"
)

// Repository reads users.
type Repository struct {
	q storage.Querier
}

func New(q storage.Querier) *Repository {
	return &Repository{q: q}
}

// Exists reports whether a user with id exists.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.q.Query(ctx, sq.Select("1").From("users").Where(sq.Eq{"id": id}).Limit(1), func(rows storage.Rows) error {
		found = rows.Next()

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}

	return found, nil
}

// GetByID returns one user or a NotFoundError.
func (r *Repository) GetByID(ctx context.Context, id int64) (user.User, error) {
	var (
		u     user.User
		found bool
	)
	query := sq.Select("id", "email", "name", "created_at").From("users").Where(sq.Eq{"id": id})
	err := r.q.Query(ctx, query, func(rows storage.Rows) error {
		found = rows.Next()
		if !found {
			return nil
		}

		return rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	})
	if err != nil {
		return user.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	if !found {
		return user.User{}, &errs.NotFoundError{Entity: "user", ID: id}
	}

	return u, nil
}
