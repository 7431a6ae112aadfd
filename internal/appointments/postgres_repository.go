package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// db is the subset of pgxpool.Pool the repository uses; pgxmock pools
// satisfy it in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// NewPostgresRepositoryWithDB allows injecting mocks for tests.
func NewPostgresRepositoryWithDB(pool db) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new appointment row. The partial unique index on
// (date, slot_start) WHERE status='scheduled' makes the insert itself the
// race arbiter: the losing insert surfaces as ErrSlotTaken.
func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return errors.New("appointments: appointment required")
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.Status == "" {
		appt.Status = StatusScheduled
	}

	query := `
		INSERT INTO appointments (id, patient_name, patient_age, phone, complaint, date, slot_start, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7::time, $8)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		appt.ID,
		appt.PatientName,
		appt.PatientAge,
		appt.Phone,
		appt.Complaint,
		appt.Date,
		appt.SlotStart,
		appt.Status,
	).Scan(&appt.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotTaken
		}
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, patient_name, patient_age, phone, complaint, date,
	       to_char(slot_start, 'HH24:MI'), status, reminder_sent_at, created_at
	FROM appointments
`

// GetByID fetches one appointment.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

// UpdateStatus transitions the appointment's lifecycle state.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !ValidStatus(status) {
		return ErrInvalidStatus
	}
	tag, err := r.pool.Exec(ctx, `UPDATE appointments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("appointments: update status failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByDate returns appointments on date filtered by status, ordered by
// slot start. Empty statuses means all.
func (r *PostgresRepository) ListByDate(ctx context.Context, date time.Time, statuses []Status) ([]*Appointment, error) {
	query := selectColumns + ` WHERE date = $1`
	args := []any{date}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		args = append(args, values)
	}
	query += ` ORDER BY slot_start`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by date failed: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListByPhone returns the patient's appointment history, most recent first.
func (r *PostgresRepository) ListByPhone(ctx context.Context, phone string, limit int) ([]*Appointment, error) {
	query := selectColumns + ` WHERE phone = $1 ORDER BY date DESC, slot_start DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by phone failed: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListDueReminders returns scheduled appointments starting within [from, to)
// whose reminder marker is unset.
func (r *PostgresRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	query := selectColumns + `
		WHERE status = 'scheduled'
		  AND reminder_sent_at IS NULL
		  AND (date + slot_start) >= $1
		  AND (date + slot_start) < $2
		ORDER BY date, slot_start
	`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list due reminders failed: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// MarkReminderSent sets the reminder marker once. The IS NULL guard keeps a
// concurrent or repeated mark from overwriting the first send time.
func (r *PostgresRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE appointments SET reminder_sent_at = $2 WHERE id = $1 AND reminder_sent_at IS NULL`,
		id, at)
	if err != nil {
		return fmt.Errorf("appointments: mark reminder failed: %w", err)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	if err := row.Scan(
		&appt.ID,
		&appt.PatientName,
		&appt.PatientAge,
		&appt.Phone,
		&appt.Complaint,
		&appt.Date,
		&appt.SlotStart,
		&appt.Status,
		&appt.ReminderSentAt,
		&appt.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &appt, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var result []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		result = append(result, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows failed: %w", err)
	}
	return result, nil
}
