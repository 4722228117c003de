package profile

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

// Repository persists profiles in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, email, COALESCE(npm, ''), name, role, jurusan, photo_url, COALESCE(face_descriptor, ''), face_enrolled_at, created_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.StudentID, &p.Name, &p.Role, &p.Major, &p.PhotoURL, &p.FaceDescriptor, &p.FaceEnrolledAt, &p.CreatedAt)
	return p, err
}

// Create inserts a new profile with its password hash.
func (r *Repository) Create(ctx context.Context, p Profile, passwordHash string) (Profile, error) {
	if p.Email == "" {
		return Profile{}, errors.New("email required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = RoleStudent
	}
	var npm any
	if p.StudentID != "" {
		npm = p.StudentID
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, email, npm, name, role, jurusan, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, strings.ToLower(p.Email), npm, p.Name, p.Role, p.Major, passwordHash)
	if err := row.Scan(&p.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Profile{}, ErrExists
		}
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	p.Email = strings.ToLower(p.Email)
	return p, nil
}

// GetByEmail returns a profile by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email = $1`, strings.ToLower(email))
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

// GetByStudentID returns a profile by student number.
func (r *Repository) GetByStudentID(ctx context.Context, npm string) (Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE npm = $1`, npm)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

// Credentials returns the profile and its password hash for login.
func (r *Repository) Credentials(ctx context.Context, email string) (Profile, string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+`, password_hash FROM profiles WHERE email = $1`, strings.ToLower(email))
	var p Profile
	var hash string
	err := row.Scan(&p.ID, &p.Email, &p.StudentID, &p.Name, &p.Role, &p.Major, &p.PhotoURL, &p.FaceDescriptor, &p.FaceEnrolledAt, &p.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, "", ErrNotFound
	}
	return p, hash, err
}

// Apply writes resolved changes. A new descriptor overwrites the old one.
func (r *Repository) Apply(ctx context.Context, email string, c Changes) (Profile, error) {
	var enrolledAt any
	if c.FaceEnrolledAt != nil {
		enrolledAt = c.FaceEnrolledAt.UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE profiles SET
			name = COALESCE($2, name),
			jurusan = COALESCE($3, jurusan),
			photo_url = COALESCE($4, photo_url),
			face_descriptor = COALESCE($5, face_descriptor),
			face_enrolled_at = COALESCE($6, face_enrolled_at),
			updated_at = $7
		WHERE email = $1
		RETURNING `+profileColumns,
		strings.ToLower(email), c.Name, c.Major, c.PhotoURL, c.FaceDescriptor, enrolledAt, time.Now().UTC())
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}
