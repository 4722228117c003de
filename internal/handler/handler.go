package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qrface/internal/attendance"
	"qrface/internal/cloudinary"
	"qrface/internal/metrics"
	"qrface/internal/profile"
	"qrface/internal/sessions"
)

// Profiles is the profile persistence the handlers need.
type Profiles interface {
	Create(ctx context.Context, p profile.Profile, passwordHash string) (profile.Profile, error)
	GetByEmail(ctx context.Context, email string) (profile.Profile, error)
	GetByStudentID(ctx context.Context, npm string) (profile.Profile, error)
	Credentials(ctx context.Context, email string) (profile.Profile, string, error)
	Apply(ctx context.Context, email string, c profile.Changes) (profile.Profile, error)
}

// Records lists stored check-ins.
type Records interface {
	List(ctx context.Context, f attendance.Filter) ([]attendance.Record, error)
}

// Submitter records verified check-ins.
type Submitter interface {
	Submit(ctx context.Context, r attendance.Request) (attendance.Response, error)
}

// Issuer opens check-in codes for lecturers.
type Issuer interface {
	Open(ctx context.Context, sessionID string, meeting int) (sessions.Issued, error)
}

// PhotoUploader stores enrollment photos.
type PhotoUploader interface {
	UploadBytes(ctx context.Context, data []byte, filename, publicID string) (*cloudinary.UploadResult, error)
}

// RefreshTokens tracks refresh token rotation.
type RefreshTokens interface {
	Save(ctx context.Context, subject, token string, expiresAt time.Time) error
	Consume(ctx context.Context, token string) error
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler wires the HTTP API to the backend components. Photos, Tokens and
// Metrics are optional.
type Handler struct {
	Profiles   Profiles
	Records    Records
	Attendance Submitter
	Issuer     Issuer
	Registry   sessions.Registry
	Photos     PhotoUploader
	Tokens     RefreshTokens
	Metrics    *metrics.Metrics
	Auth       AuthConfig
	// CodeTTL is reported to lecturers as the lifetime of an issued code.
	CodeTTL time.Duration
	// Checks are dependency health checks reported by /healthz.
	Checks map[string]func(ctx context.Context) bool
}

// Healthz reports dependency status.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Checks {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
