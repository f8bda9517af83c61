package trusteddevices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/dbx"
	"github.com/dbelyaev/authcore/internal/server/models"
)

const deviceColumns = `id, user_id, device_id, device_name, device_model, platform,
	label, active, trusted_at, last_used_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID, deviceID string) (*models.TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_devices WHERE user_id = $1 AND device_id = $2`

	d := &models.TrustedDevice{}
	err := r.db.QueryRowContext(ctx, query, userID, deviceID).Scan(
		&d.ID, &d.UserID, &d.Device.DeviceID, &d.Device.Name, &d.Device.Model,
		&d.Device.Platform, &d.Label, &d.Active, &d.TrustedAt, &d.LastUsedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, d *models.TrustedDevice) (*models.TrustedDevice, error) {
	query :=
		`INSERT INTO trusted_devices (user_id, device_id, device_name, device_model, platform,
		     label, active, trusted_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		d.UserID, d.Device.DeviceID, d.Device.Name, d.Device.Model, d.Device.Platform,
		d.Label, d.Active, d.TrustedAt, d.LastUsedAt).
		Scan(&d.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) Update(ctx context.Context, d *models.TrustedDevice) error {
	query :=
		`UPDATE trusted_devices SET device_name = $2, device_model = $3, platform = $4,
		     label = $5, active = $6, last_used_at = $7
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query,
		d.ID, d.Device.Name, d.Device.Model, d.Device.Platform,
		d.Label, d.Active, d.LastUsedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	query :=
		`SELECT ` + deviceColumns + ` FROM trusted_devices
		 WHERE user_id = $1 AND active
		 ORDER BY last_used_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.TrustedDevice
	for rows.Next() {
		d := &models.TrustedDevice{}
		err := rows.Scan(
			&d.ID, &d.UserID, &d.Device.DeviceID, &d.Device.Name, &d.Device.Model,
			&d.Device.Platform, &d.Label, &d.Active, &d.TrustedAt, &d.LastUsedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
