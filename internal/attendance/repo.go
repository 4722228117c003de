package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned when a student already has a record for a meeting.
var ErrDuplicate = errors.New("attendance already recorded")

// Record statuses.
const (
	StatusPending = "pending"
	StatusPresent = "present"
)

// Record is one stored check-in.
type Record struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"nim"`
	SessionID     string    `json:"id_jadwal"`
	MeetingNumber int       `json:"pertemuan"`
	IssuedAt      time.Time `json:"qr_timestamp"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Filter narrows List.
type Filter struct {
	SessionID     string
	StudentID     string
	MeetingNumber int
	Limit         int
	Offset        int
}

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, student_id, session_id, meeting_number, qr_issued_at, status, created_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.MeetingNumber, &rec.IssuedAt, &rec.Status, &rec.CreatedAt)
	return rec, err
}

// Find returns the record for a student's meeting, or nil when none exists.
func (r *Repository) Find(ctx context.Context, studentID, sessionID string, meeting int) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE student_id = $1 AND session_id = $2 AND meeting_number = $3
	`, studentID, sessionID, meeting)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert writes a new record. A concurrent duplicate surfaces as ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, session_id, meeting_number, qr_issued_at, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, rec.ID, rec.StudentID, rec.SessionID, rec.MeetingNumber, rec.IssuedAt.UTC(), rec.Status)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`, id)
	return scanRecord(row)
}

// UpdateStatus sets the status after processing.
func (r *Repository) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE attendance_records SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns records with basic filters, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		clauses = append(clauses, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if f.MeetingNumber > 0 {
		args = append(args, f.MeetingNumber)
		clauses = append(clauses, fmt.Sprintf("meeting_number = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
