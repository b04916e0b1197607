package bookings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/agendmed/internal/availability"
)

// Repository is the local ledger of confirmed bookings.
type Repository interface {
	Create(ctx context.Context, b ConfirmedBooking) error
	SetRemoteID(ctx context.Context, id, remoteID string) error
	SetStatus(ctx context.Context, id string, status Status) error
	Get(ctx context.Context, id string) (ConfirmedBooking, error)
	ListByCaller(ctx context.Context, callerID string) ([]ConfirmedBooking, error)
	Cancel(ctx context.Context, callerID, id string) error
}

// PostgresRepository stores bookings through database/sql (pgx stdlib driver).
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	if db == nil {
		panic("bookings: db required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, b ConfirmedBooking) error {
	query := `
		INSERT INTO bookings (
			id, caller_id, caller_name, tenant_id, service_id, service_name,
			service_duration, price, period, date_text, time_text,
			appointment_at, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.CallerID, b.CallerName, b.TenantID, b.Service.ID, b.Service.Name,
		b.Service.DurationMinutes, b.Price, string(b.Period), b.Date, b.Time,
		b.AppointmentAt.UTC(), string(b.Status), b.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("bookings: insert: %w", err)
	}
	return nil
}

// SetRemoteID records the remote id and marks the booking saved. A booking
// cancelled in the meantime keeps its cancelled status.
func (r *PostgresRepository) SetRemoteID(ctx context.Context, id, remoteID string) error {
	query := `
		UPDATE bookings
		SET remote_id = $2,
			status = CASE WHEN status = $4 THEN status ELSE $3 END,
			updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, remoteID, string(StatusSaved), string(StatusCancelled))
	if err != nil {
		return fmt.Errorf("bookings: set remote id: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status Status) error {
	query := `UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("bookings: set status: %w", err)
	}
	return requireRow(res)
}

const selectColumns = `
	id, caller_id, caller_name, tenant_id, service_id, service_name,
	service_duration, price, period, date_text, time_text, appointment_at,
	status, COALESCE(remote_id, ''), created_at
`

func (r *PostgresRepository) Get(ctx context.Context, id string) (ConfirmedBooking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ConfirmedBooking{}, ErrNotFound
	}
	if err != nil {
		return ConfirmedBooking{}, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) ListByCaller(ctx context.Context, callerID string) ([]ConfirmedBooking, error) {
	query := `SELECT ` + selectColumns + `
		FROM bookings
		WHERE caller_id = $1 AND status <> $2
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, callerID, string(StatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("bookings: list: %w", err)
	}
	defer rows.Close()

	out := []ConfirmedBooking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Cancel(ctx context.Context, callerID, id string) error {
	query := `
		UPDATE bookings SET status = $3, updated_at = now()
		WHERE id = $1 AND caller_id = $2 AND status <> $3
	`
	res, err := r.db.ExecContext(ctx, query, id, callerID, string(StatusCancelled))
	if err != nil {
		return fmt.Errorf("bookings: cancel: %w", err)
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(s scanner) (ConfirmedBooking, error) {
	var (
		b             ConfirmedBooking
		period        string
		status        string
		appointmentAt time.Time
		createdAt     time.Time
	)
	err := s.Scan(
		&b.ID, &b.CallerID, &b.CallerName, &b.TenantID, &b.Service.ID, &b.Service.Name,
		&b.Service.DurationMinutes, &b.Price, &period, &b.Date, &b.Time, &appointmentAt,
		&status, &b.RemoteID, &createdAt,
	)
	if err != nil {
		return ConfirmedBooking{}, err
	}
	b.Service.Price = b.Price
	b.Period = availability.Period(period)
	b.Status = Status(status)
	b.AppointmentAt = appointmentAt
	b.CreatedAt = createdAt
	return b, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bookings: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
