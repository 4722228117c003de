package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qrface/internal/biometric"
	"qrface/internal/camera"
	"qrface/internal/profile"
)

var (
	// ErrNotOpen is returned by Capture before Open or after Close.
	ErrNotOpen = errors.New("enrollment camera not open")
)

// ProfileUpdater persists profile changes, including the face template.
type ProfileUpdater interface {
	Update(ctx context.Context, u profile.Update) (*profile.Profile, error)
}

// Deps are the collaborators of a flow.
type Deps struct {
	Camera    camera.BiometricCamera
	Arbiter   *camera.Arbiter
	Extractor biometric.Extractor
	Profiles  ProfileUpdater
	Clock     func() time.Time
}

// Flow enrolls one owner. The camera is held between Open and either a
// successful Capture or Close.
type Flow struct {
	ownerID string
	email   string
	deps    Deps

	mu     sync.Mutex
	stream camera.Stream
}

// New creates a flow for the student identified by ownerID whose profile is keyed by email.
func New(ownerID, email string, deps Deps) *Flow {
	if deps.Arbiter == nil {
		deps.Arbiter = camera.NewArbiter()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Flow{ownerID: ownerID, email: email, deps: deps}
}

// Open acquires the camera. On failure nothing is held.
func (f *Flow) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream != nil {
		return nil
	}
	if err := f.deps.Arbiter.Acquire(camera.KindBiometric); err != nil {
		return err
	}
	stream, err := f.deps.Camera.Open(ctx)
	if err != nil {
		f.deps.Arbiter.Release(camera.KindBiometric)
		return fmt.Errorf("open camera: %w", err)
	}
	f.stream = stream
	return nil
}

// Capture extracts one embedding and persists it as the new template.
// Capture failures leave the camera open so the caller can retry; only a
// denied or closed stream, a save failure or success release it.
func (f *Flow) Capture(ctx context.Context) (biometric.Template, error) {
	f.mu.Lock()
	stream := f.stream
	f.mu.Unlock()
	if stream == nil {
		return biometric.Template{}, ErrNotOpen
	}

	frame, err := stream.Frame(ctx)
	if err != nil {
		if errors.Is(err, camera.ErrPermissionDenied) || errors.Is(err, camera.ErrClosed) {
			f.Close()
		}
		return biometric.Template{}, fmt.Errorf("capture frame: %w", err)
	}
	emb, err := f.deps.Extractor.Extract(ctx, frame)
	if errors.Is(err, biometric.ErrNoFace) {
		return biometric.Template{}, err
	}
	if err != nil {
		return biometric.Template{}, fmt.Errorf("extract embedding: %w", err)
	}

	tpl := biometric.Template{
		OwnerID:    f.ownerID,
		Embedding:  emb,
		EnrolledAt: f.deps.Clock().UTC(),
	}
	defer f.Close()
	if _, err := f.deps.Profiles.Update(ctx, profile.Update{
		Email:    f.email,
		Template: &tpl,
		Photo:    &frame,
	}); err != nil {
		return biometric.Template{}, fmt.Errorf("save template: %w", err)
	}
	return tpl, nil
}

// Close releases the camera. It is safe to call repeatedly.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream == nil {
		return
	}
	_ = f.stream.Close()
	f.stream = nil
	f.deps.Arbiter.Release(camera.KindBiometric)
}

// retryable reports whether the stream survived the last capture.
func (f *Flow) retryable(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stream != nil && ctx.Err() == nil
}

// Enroll runs a whole flow, retrying failed captures up to attempts times.
func Enroll(ctx context.Context, ownerID, email string, deps Deps, attempts int) (biometric.Template, error) {
	if attempts <= 0 {
		attempts = 1
	}
	f := New(ownerID, email, deps)
	defer f.Close()
	if err := f.Open(ctx); err != nil {
		return biometric.Template{}, err
	}
	var err error
	for i := 0; i < attempts; i++ {
		var tpl biometric.Template
		tpl, err = f.Capture(ctx)
		if err == nil || !f.retryable(ctx) {
			return tpl, err
		}
	}
	return biometric.Template{}, err
}
