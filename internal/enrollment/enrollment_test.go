package enrollment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrface/internal/biometric"
	"qrface/internal/camera"
	"qrface/internal/camera/camtest"
	"qrface/internal/profile"
)

type fakeProfiles struct {
	updates []profile.Update
	err     error
}

func (f *fakeProfiles) Update(_ context.Context, u profile.Update) (*profile.Profile, error) {
	f.updates = append(f.updates, u)
	if f.err != nil {
		return nil, f.err
	}
	return &profile.Profile{Email: u.Email}, nil
}

var enrolled = biometric.Embedding{0.1, 0.2, 0.3, 0.4}

func newDeps(ex *camtest.Extractor) (Deps, *camtest.Camera, *fakeProfiles) {
	cam := &camtest.Camera{}
	profiles := &fakeProfiles{}
	fixed := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
	return Deps{
		Camera:    cam,
		Arbiter:   camera.NewArbiter(),
		Extractor: ex,
		Profiles:  profiles,
		Clock:     func() time.Time { return fixed },
	}, cam, profiles
}

func TestCaptureSavesTemplateAndReleasesCamera(t *testing.T) {
	deps, cam, profiles := newDeps(&camtest.Extractor{Results: []camtest.Result{{Embedding: enrolled}}})
	f := New("2207001", "a@kampus.ac.id", deps)

	require.NoError(t, f.Open(context.Background()))
	assert.Equal(t, 1, cam.ActiveTracks())

	tpl, err := f.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2207001", tpl.OwnerID)
	assert.Equal(t, enrolled, tpl.Embedding)
	assert.Equal(t, 0, cam.ActiveTracks())
	_, held := deps.Arbiter.Active()
	assert.False(t, held)

	require.Len(t, profiles.updates, 1)
	u := profiles.updates[0]
	assert.Equal(t, "a@kampus.ac.id", u.Email)
	require.NotNil(t, u.Template)
	assert.Equal(t, enrolled, u.Template.Embedding)
	require.NotNil(t, u.Photo, "enrollment frame travels with the profile update")
}

func TestNoFaceKeepsCameraForRetry(t *testing.T) {
	ex := &camtest.Extractor{Results: []camtest.Result{{Err: biometric.ErrNoFace}, {Embedding: enrolled}}}
	deps, cam, profiles := newDeps(ex)
	f := New("2207001", "a@kampus.ac.id", deps)
	require.NoError(t, f.Open(context.Background()))

	_, err := f.Capture(context.Background())
	assert.ErrorIs(t, err, biometric.ErrNoFace)
	assert.Equal(t, 1, cam.ActiveTracks())
	assert.Empty(t, profiles.updates)

	_, err = f.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cam.Opens, "retry reuses the open stream")
	assert.Equal(t, 0, cam.ActiveTracks())
}

func TestExtractorFailureKeepsCameraForRetry(t *testing.T) {
	ex := &camtest.Extractor{Results: []camtest.Result{{Err: errors.New("face service 503")}, {Embedding: enrolled}}}
	deps, cam, profiles := newDeps(ex)
	f := New("2207001", "a@kampus.ac.id", deps)
	require.NoError(t, f.Open(context.Background()))

	_, err := f.Capture(context.Background())
	assert.ErrorContains(t, err, "face service 503")
	assert.Equal(t, 1, cam.ActiveTracks())
	assert.Empty(t, profiles.updates)

	tpl, err := f.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enrolled, tpl.Embedding)
	assert.Equal(t, 1, cam.Opens)
	assert.Equal(t, 0, cam.ActiveTracks())
}

func TestFrameErrors(t *testing.T) {
	t.Run("transient error keeps stream", func(t *testing.T) {
		deps, cam, _ := newDeps(&camtest.Extractor{Results: []camtest.Result{{Embedding: enrolled}}})
		cam.FrameErr = errors.New("frame dropped")
		f := New("x", "x@kampus.ac.id", deps)
		require.NoError(t, f.Open(context.Background()))

		_, err := f.Capture(context.Background())
		assert.ErrorContains(t, err, "frame dropped")
		assert.Equal(t, 1, cam.ActiveTracks())

		_, err = f.Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, cam.ActiveTracks())
	})
	t.Run("permission revoked releases", func(t *testing.T) {
		deps, cam, _ := newDeps(&camtest.Extractor{})
		cam.FrameErr = camera.ErrPermissionDenied
		f := New("x", "x@kampus.ac.id", deps)
		require.NoError(t, f.Open(context.Background()))

		_, err := f.Capture(context.Background())
		assert.ErrorIs(t, err, camera.ErrPermissionDenied)
		assert.Equal(t, 0, cam.ActiveTracks())
		_, held := deps.Arbiter.Active()
		assert.False(t, held)
	})
}

func TestCameraReleasedOnEveryExit(t *testing.T) {
	t.Run("profile update failure", func(t *testing.T) {
		deps, cam, profiles := newDeps(&camtest.Extractor{Results: []camtest.Result{{Embedding: enrolled}}})
		profiles.err = errors.New("backend down")
		f := New("x", "x@kampus.ac.id", deps)
		require.NoError(t, f.Open(context.Background()))
		_, err := f.Capture(context.Background())
		assert.ErrorContains(t, err, "backend down")
		assert.Equal(t, 0, cam.ActiveTracks())
	})
	t.Run("cancel", func(t *testing.T) {
		deps, cam, _ := newDeps(&camtest.Extractor{})
		f := New("x", "x@kampus.ac.id", deps)
		require.NoError(t, f.Open(context.Background()))
		f.Close()
		f.Close()
		assert.Equal(t, 0, cam.ActiveTracks())
		_, err := f.Capture(context.Background())
		assert.ErrorIs(t, err, ErrNotOpen)
	})
}

func TestPermissionDeniedHoldsNothing(t *testing.T) {
	deps, cam, _ := newDeps(&camtest.Extractor{})
	cam.OpenErr = camera.ErrPermissionDenied
	f := New("x", "x@kampus.ac.id", deps)

	err := f.Open(context.Background())
	assert.ErrorIs(t, err, camera.ErrPermissionDenied)
	_, held := deps.Arbiter.Active()
	assert.False(t, held)
}

func TestEnrollRetriesNoFace(t *testing.T) {
	ex := &camtest.Extractor{Results: []camtest.Result{{Err: biometric.ErrNoFace}, {Err: biometric.ErrNoFace}, {Embedding: enrolled}}}
	deps, cam, _ := newDeps(ex)

	tpl, err := Enroll(context.Background(), "2207001", "a@kampus.ac.id", deps, 3)
	require.NoError(t, err)
	assert.Equal(t, enrolled, tpl.Embedding)
	assert.Equal(t, 0, cam.ActiveTracks())

	deps, cam, _ = newDeps(&camtest.Extractor{Results: []camtest.Result{{Err: biometric.ErrNoFace}}})
	_, err = Enroll(context.Background(), "2207001", "a@kampus.ac.id", deps, 2)
	assert.ErrorIs(t, err, biometric.ErrNoFace)
	assert.Equal(t, 0, cam.ActiveTracks())
}

func TestEnrollRetriesExtractorFailures(t *testing.T) {
	ex := &camtest.Extractor{Results: []camtest.Result{{Err: errors.New("timeout")}, {Err: biometric.ErrNoFace}, {Embedding: enrolled}}}
	deps, cam, _ := newDeps(ex)

	tpl, err := Enroll(context.Background(), "2207001", "a@kampus.ac.id", deps, 3)
	require.NoError(t, err)
	assert.Equal(t, enrolled, tpl.Embedding)
	assert.Equal(t, 3, ex.Calls)
	assert.Equal(t, 0, cam.ActiveTracks())

	deps, cam, profiles := newDeps(&camtest.Extractor{Results: []camtest.Result{{Embedding: enrolled}}})
	profiles.err = errors.New("backend down")
	_, err = Enroll(context.Background(), "2207001", "a@kampus.ac.id", deps, 3)
	assert.ErrorContains(t, err, "backend down")
	assert.Len(t, profiles.updates, 1, "save failure is not retried")
	assert.Equal(t, 0, cam.ActiveTracks())
}
