package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/dbx"
	"github.com/dbelyaev/authcore/internal/server/models"
)

const sessionColumns = `id, user_id, device_id, device_name, device_model, platform,
	os_version, app_version, ip, trusted, active, credential_id, last_activity_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, s *models.Session) (*models.Session, error) {
	query :=
		`INSERT INTO sessions (user_id, device_id, device_name, device_model, platform,
		     os_version, app_version, ip, trusted, active, credential_id, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		s.UserID, s.Device.DeviceID, s.Device.Name, s.Device.Model, s.Device.Platform,
		s.Device.OSVersion, s.Device.AppVersion, s.IP, s.Trusted, s.Active,
		s.CredentialID, s.LastActivityAt).
		Scan(&s.ID, &s.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return s, nil
}

func (r *PostgresRepository) Update(ctx context.Context, s *models.Session) error {
	query :=
		`UPDATE sessions SET device_name = $2, device_model = $3, platform = $4,
		     os_version = $5, app_version = $6, ip = $7, trusted = $8,
		     credential_id = $9, last_activity_at = $10
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query,
		s.ID, s.Device.Name, s.Device.Model, s.Device.Platform,
		s.Device.OSVersion, s.Device.AppVersion, s.IP, s.Trusted,
		s.CredentialID, s.LastActivityAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetActive(ctx context.Context, userID, deviceID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 AND device_id = $2 AND active`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, deviceID))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.Device.DeviceID, &s.Device.Name, &s.Device.Model,
		&s.Device.Platform, &s.Device.OSVersion, &s.Device.AppVersion, &s.IP,
		&s.Trusted, &s.Active, &s.CredentialID, &s.LastActivityAt, &s.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, userID string) ([]*models.Session, error) {
	query :=
		`SELECT ` + sessionColumns + ` FROM sessions
		 WHERE user_id = $1 AND active
		 ORDER BY last_activity_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		s := &models.Session{}
		err := rows.Scan(
			&s.ID, &s.UserID, &s.Device.DeviceID, &s.Device.Name, &s.Device.Model,
			&s.Device.Platform, &s.Device.OSVersion, &s.Device.AppVersion, &s.IP,
			&s.Trusted, &s.Active, &s.CredentialID, &s.LastActivityAt, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	return r.execCount(ctx, `UPDATE sessions SET active = FALSE WHERE user_id = $1 AND active`, userID)
}

func (r *PostgresRepository) DeactivateAllExcept(ctx context.Context, userID, deviceID string) (int64, error) {
	return r.execCount(ctx,
		`UPDATE sessions SET active = FALSE WHERE user_id = $1 AND device_id <> $2 AND active`,
		userID, deviceID)
}

func (r *PostgresRepository) SetTrusted(ctx context.Context, userID, deviceID string, trusted bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET trusted = $3 WHERE user_id = $1 AND device_id = $2 AND active`,
		userID, deviceID, trusted)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReplaceCredential(ctx context.Context, oldCredentialID, newCredentialID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET credential_id = $2 WHERE credential_id = $1 AND active`,
		oldCredentialID, newCredentialID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
