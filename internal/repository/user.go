package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/chat-relay-go/internal/database"
	"github.com/openclaw/chat-relay-go/internal/model"
)

type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.User, error)
	CountExisting(ctx context.Context, usernames []string) (int, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	DeleteAll(ctx context.Context) (int64, error)
	WithTx(tx *sqlx.Tx) UserRepository
}

type userRepo struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`
		SELECT * FROM users WHERE username = ?
	`), username)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindAll(ctx context.Context, limit, offset int) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(`
		SELECT * FROM users
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepo) CountExisting(ctx context.Context, usernames []string) (int, error) {
	if len(usernames) == 0 {
		return 0, nil
	}
	query, args, err := sqlxIn(`SELECT COUNT(*) FROM users WHERE username IN (?)`, usernames)
	if err != nil {
		return 0, err
	}
	var count int
	err = r.db.GetContext(ctx, &count, r.db.Rebind(query), args...)
	return count, err
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	user := model.User{
		ID:           id,
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now(),
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`), user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
