package sqlite

import (
	"context"
	"database/sql"

	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/repository"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository returns the SQLite user repository.
func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, email, password_hash, created_at)
        VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt.UTC())
	return translateError(err, "insert user")
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id=?`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email=?`, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		return nil, translateError(err, "select user")
	}
	return &user, nil
}
