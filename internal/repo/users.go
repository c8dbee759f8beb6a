package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/techbreeze/order-service/internal/entities"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var userColumns = []string{"user_uid", "email", "name", "role"}

type usersRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewUsersRepo(db *sqlx.DB) *usersRepo {
	return &usersRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetByToken resolves an API token to a user. The auth middleware is the only
// caller; tokens themselves never travel further into the service.
func (r *usersRepo) GetByToken(ctx context.Context, token string) (entities.User, error) {
	query, args := r.qb.Select(userColumns...).
		From("users").
		Where(sq.Eq{"api_token": token}).
		MustSql()

	var user User
	err := r.db.GetContext(ctx, &user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.User{}, entities.ErrUserNotFound
	}
	if err != nil {
		return entities.User{}, fmt.Errorf("failed to get user by token: %w", err)
	}
	return UserToEntity(user), nil
}

func (r *usersRepo) GetByID(ctx context.Context, userUID uuid.UUID) (entities.User, error) {
	query, args := r.qb.Select(userColumns...).
		From("users").
		Where(sq.Eq{"user_uid": userUID}).
		MustSql()

	var user User
	err := r.db.GetContext(ctx, &user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.User{}, entities.ErrUserNotFound
	}
	if err != nil {
		return entities.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return UserToEntity(user), nil
}
