package iuserrepo

import (
	"context"

	"github.com/corray333/backend-labs/storefront/internal/service/models/user"
)

// IUserRepository is an interface for user repository.
type IUserRepository interface {
	Exists(ctx context.Context, id int64) (bool, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
}
