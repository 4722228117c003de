package profile

import (
	"errors"
	"time"

	"qrface/internal/biometric"
	"qrface/internal/camera"
)

// ErrNotFound is returned when no profile matches.
var ErrNotFound = errors.New("profile not found")

// ErrExists is returned when the email or student number is already registered.
var ErrExists = errors.New("profile already exists")

// Roles carried on profiles and tokens.
const (
	RoleStudent  = "student"
	RoleLecturer = "lecturer"
	RoleAdmin    = "admin"
)

// Profile is the user record shared by the portals. FaceDescriptor holds the
// enrolled template as a JSON array string.
type Profile struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	StudentID      string     `json:"npm,omitempty"`
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	Major          string     `json:"jurusan,omitempty"`
	PhotoURL       string     `json:"foto_url,omitempty"`
	FaceDescriptor string     `json:"face_descriptor,omitempty"`
	FaceEnrolledAt *time.Time `json:"face_enrolled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Template returns the enrolled face template, or nil when the profile has none.
func (p Profile) Template() (*biometric.Template, error) {
	emb, err := biometric.ParseDescriptor(p.FaceDescriptor)
	if err != nil {
		return nil, err
	}
	if len(emb) == 0 {
		return nil, nil
	}
	owner := p.StudentID
	if owner == "" {
		owner = p.Email
	}
	t := &biometric.Template{OwnerID: owner, Embedding: emb}
	if p.FaceEnrolledAt != nil {
		t.EnrolledAt = *p.FaceEnrolledAt
	}
	return t, nil
}

// Update is a partial profile change. Nil fields are left untouched; a
// non-nil Template replaces the enrolled one wholesale.
type Update struct {
	Email    string
	Name     *string
	Major    *string
	Template *biometric.Template
	Photo    *camera.Frame
}

// Changes is an Update resolved by the server: descriptor encoded, photo uploaded.
type Changes struct {
	Name           *string
	Major          *string
	PhotoURL       *string
	FaceDescriptor *string
	FaceEnrolledAt *time.Time
}
