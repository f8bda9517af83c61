package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/dbx"
	"github.com/dbelyaev/authcore/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID, token string, expiresAt time.Time) (*models.RefreshCredential, error) {
	query :=
		`INSERT INTO refresh_credentials (user_id, token, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at
		 `

	cred := &models.RefreshCredential{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}

	err := r.db.QueryRowContext(ctx, query, userID, token, expiresAt).
		Scan(&cred.ID, &cred.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return cred, nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, token string) (*models.RefreshCredential, error) {
	query :=
		`SELECT id, user_id, token, expires_at, revoked, created_at
		 FROM refresh_credentials
		 WHERE token = $1 AND NOT revoked AND expires_at > $2
		 `

	cred := &models.RefreshCredential{}
	err := r.db.QueryRowContext(ctx, query, token, time.Now()).Scan(
		&cred.ID, &cred.UserID, &cred.Token, &cred.ExpiresAt, &cred.Revoked, &cred.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return cred, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, token string) (bool, error) {
	query :=
		`UPDATE refresh_credentials SET revoked = TRUE
		 WHERE token = $1 AND NOT revoked
		 `

	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	query :=
		`UPDATE refresh_credentials SET revoked = TRUE
		 WHERE user_id = $1 AND NOT revoked
		 `

	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CountActiveForUser(ctx context.Context, userID string) (int64, error) {
	query :=
		`SELECT COUNT(*) FROM refresh_credentials
		 WHERE user_id = $1 AND NOT revoked AND expires_at > $2
		 `

	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID, time.Now()).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
