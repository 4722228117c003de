// Package verify runs the two-factor check-in: a lecturer QR code followed by a
// face match against the student's enrolled template, then submission.
//
// The machine is driven by host events (StartScan, Capture, Retry, RetrySubmit,
// Cancel) and by the scanner callback. Frame capture, embedding extraction and
// submission run without the machine lock held; their results are discarded if
// the attempt was cancelled meanwhile.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"qrface/internal/attendance"
	"qrface/internal/biometric"
	"qrface/internal/camera"
	"qrface/internal/qrpayload"
)

var (
	// ErrInvalidState is returned when an event does not apply to the current state.
	ErrInvalidState = errors.New("action not allowed in current state")
	// ErrStale is returned when an in-flight step finished after the attempt was cancelled.
	ErrStale = errors.New("verification cancelled")
)

// User-visible notices.
const (
	NoticeInvalidCode      = "invalid code, scan the lecturer's QR again"
	NoticeEnrollFirst      = "no face enrolled on your profile, enroll your face first"
	NoticeNoFace           = "face not detected, try again"
	NoticeMismatch         = "face does not match enrolled identity"
	NoticeReenroll         = "enrolled face data is incompatible, enroll your face again"
	NoticeCameraDenied     = "camera permission denied"
	NoticeCameraFailed     = "camera unavailable"
	NoticeCaptureFailed    = "capture failed, try again"
	NoticeSubmitted        = "attendance recorded"
	NoticeSubmissionFailed = "attendance not recorded"
)

// Submitter hands a verified check-in to the attendance backend.
type Submitter interface {
	Submit(ctx context.Context, r attendance.Request) (attendance.Response, error)
}

// Session is the signed-in student the machine verifies.
type Session struct {
	StudentID string
	Template  *biometric.Template
}

// Deps are the capabilities the machine drives.
type Deps struct {
	Scanner   camera.QRScanner
	Camera    camera.BiometricCamera
	Arbiter   *camera.Arbiter
	Extractor biometric.Extractor
	Submitter Submitter
	Codec     qrpayload.Codec
}

// Machine is one verification modal. It is safe for concurrent use.
type Machine struct {
	deps    Deps
	session Session

	mu       sync.Mutex
	state    State
	gen      uint64
	attempt  *Attempt
	request  attendance.Request
	notice   string
	err      error
	scanCtx  context.Context
	scan     camera.Handle
	scanning bool
	stream   camera.Stream
}

// New creates an idle machine for the given student.
func New(session Session, deps Deps) *Machine {
	if deps.Arbiter == nil {
		deps.Arbiter = camera.NewArbiter()
	}
	return &Machine{deps: deps, session: session}
}

// Snapshot is a copy of the machine for rendering.
type Snapshot struct {
	State   State
	Attempt *Attempt
	Notice  string
	Err     error
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{State: m.state, Notice: m.notice, Err: m.err}
	if m.attempt != nil {
		s.Attempt = m.attempt.clone()
	}
	return s
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartScan activates the QR reader. ctx bounds the biometric camera open that
// follows a successful read.
func (m *Machine) StartScan(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Idle, Submitted, NeedsEnrollment:
		m.resetLocked()
	default:
		return fmt.Errorf("%w: start scan from %s", ErrInvalidState, m.state)
	}

	if err := m.deps.Arbiter.Acquire(camera.KindQR); err != nil {
		return err
	}
	gen := m.gen
	h, err := m.deps.Scanner.Start(func(text string) { m.onScan(gen, text) })
	if err != nil {
		m.deps.Arbiter.Release(camera.KindQR)
		m.failCameraLocked(err)
		return err
	}
	m.scanCtx = ctx
	m.scan = h
	m.scanning = true
	m.state = Scanning
	return nil
}

// onScan is the scanner callback.
func (m *Machine) onScan(gen uint64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != Scanning {
		return
	}

	p, err := m.deps.Codec.Decode(text)
	if err != nil {
		m.notice = NoticeInvalidCode
		m.err = err
		return
	}
	m.notice, m.err = "", nil
	m.attempt = &Attempt{Payload: p, Outcome: OutcomePending}
	m.state = Decoded

	// The QR session is fully released before the biometric one opens.
	m.stopScanLocked()

	if m.session.Template == nil || len(m.session.Template.Embedding) == 0 {
		m.attempt.Outcome = OutcomeMismatch
		m.state = NeedsEnrollment
		m.notice = NoticeEnrollFirst
		return
	}

	if err := m.deps.Arbiter.Acquire(camera.KindBiometric); err != nil {
		m.failCameraLocked(err)
		return
	}
	ctx := m.scanCtx
	if ctx == nil {
		ctx = context.Background()
	}
	stream, err := m.deps.Camera.Open(ctx)
	if err != nil {
		m.deps.Arbiter.Release(camera.KindBiometric)
		m.failCameraLocked(err)
		return
	}
	m.stream = stream
	m.state = CameraOpen
}

// Capture grabs a frame, matches it against the enrolled template and, on a
// match, submits attendance. It returns the state reached.
func (m *Machine) Capture(ctx context.Context) (State, error) {
	m.mu.Lock()
	if m.state != CameraOpen {
		st := m.state
		m.mu.Unlock()
		return st, fmt.Errorf("%w: capture from %s", ErrInvalidState, st)
	}
	m.state = Capturing
	m.notice, m.err = "", nil
	gen := m.gen
	stream := m.stream
	m.mu.Unlock()

	emb, err := m.extract(ctx, stream)

	m.mu.Lock()
	if gen != m.gen || m.state != Capturing {
		m.mu.Unlock()
		return Idle, ErrStale
	}
	if err != nil {
		defer m.mu.Unlock()
		// Cancel bumps gen, so a context error here is a slow or interrupted
		// capture and the user may try again.
		switch {
		case errors.Is(err, biometric.ErrNoFace):
			m.attempt.Outcome = OutcomeNoFace
			m.state = NoFace
			m.notice = NoticeNoFace
			return m.state, nil
		case errors.Is(err, camera.ErrPermissionDenied):
			m.failCameraLocked(err)
			return m.state, err
		default:
			m.state = CameraOpen
			m.notice = NoticeCaptureFailed
			m.err = err
			return m.state, err
		}
	}

	m.attempt.CapturedEmbedding = emb
	d, ok, err := biometric.Match(emb, m.session.Template.Embedding)
	if err != nil {
		m.attempt.Outcome = OutcomeMismatch
		m.state = Mismatched
		m.notice = NoticeReenroll
		m.err = err
		m.mu.Unlock()
		return Mismatched, nil
	}
	m.attempt.Distance = &d
	if !ok {
		m.attempt.Outcome = OutcomeMismatch
		m.state = Mismatched
		m.notice = NoticeMismatch
		m.mu.Unlock()
		return Mismatched, nil
	}

	m.attempt.Outcome = OutcomeMatched
	m.state = Matched
	m.closeStreamLocked()
	m.request = attendance.Request{
		StudentID:     m.session.StudentID,
		SessionID:     m.attempt.Payload.SessionID,
		MeetingNumber: m.attempt.Payload.MeetingNumber,
		IssuedAt:      m.attempt.Payload.IssuedAt,
	}
	m.mu.Unlock()

	return m.submit(ctx, gen)
}

func (m *Machine) extract(ctx context.Context, stream camera.Stream) (biometric.Embedding, error) {
	frame, err := stream.Frame(ctx)
	if err != nil {
		return nil, err
	}
	return m.deps.Extractor.Extract(ctx, frame)
}

// Retry returns to the open camera after a no-face or mismatch result. The
// decoded payload is kept.
func (m *Machine) Retry() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != NoFace && m.state != Mismatched {
		return fmt.Errorf("%w: retry from %s", ErrInvalidState, m.state)
	}
	m.attempt.CapturedEmbedding = nil
	m.attempt.Distance = nil
	m.attempt.Outcome = OutcomePending
	m.notice, m.err = "", nil
	m.state = CameraOpen
	return nil
}

// RetrySubmit resends the already-matched request after a submission failure.
func (m *Machine) RetrySubmit(ctx context.Context) (State, error) {
	m.mu.Lock()
	if m.state != SubmissionFailed {
		st := m.state
		m.mu.Unlock()
		return st, fmt.Errorf("%w: resubmit from %s", ErrInvalidState, st)
	}
	m.state = Matched
	gen := m.gen
	m.mu.Unlock()
	return m.submit(ctx, gen)
}

// submit moves Matched -> Submitting -> Submitted | SubmissionFailed.
func (m *Machine) submit(ctx context.Context, gen uint64) (State, error) {
	m.mu.Lock()
	if gen != m.gen || m.state != Matched {
		m.mu.Unlock()
		return Idle, ErrStale
	}
	m.state = Submitting
	req := m.request
	m.mu.Unlock()

	resp, err := m.deps.Submitter.Submit(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != Submitting {
		return Idle, ErrStale
	}
	switch {
	case err != nil:
		m.attempt.Outcome = OutcomeSubmissionFailed
		m.state = SubmissionFailed
		m.notice = NoticeSubmissionFailed
		m.err = err
	case !resp.Success:
		m.attempt.Outcome = OutcomeSubmissionFailed
		m.state = SubmissionFailed
		m.notice = NoticeSubmissionFailed
		if resp.Message != "" {
			m.notice += ": " + resp.Message
		}
	default:
		m.attempt.Outcome = OutcomeSubmitted
		m.state = Submitted
		m.notice = NoticeSubmitted
		if resp.Message != "" {
			m.notice = resp.Message
		}
		m.releaseCamerasLocked()
	}
	return m.state, nil
}

// Cancel tears down any open camera session and discards the attempt.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
}

func (m *Machine) cancelLocked() {
	m.resetLocked()
	m.notice, m.err = "", nil
}

// resetLocked invalidates in-flight steps and returns to Idle.
func (m *Machine) resetLocked() {
	m.gen++
	m.releaseCamerasLocked()
	m.attempt = nil
	m.request = attendance.Request{}
	m.scanCtx = nil
	m.state = Idle
}

func (m *Machine) releaseCamerasLocked() {
	m.stopScanLocked()
	m.closeStreamLocked()
}

func (m *Machine) stopScanLocked() {
	if !m.scanning {
		return
	}
	_ = m.deps.Scanner.Stop(m.scan)
	m.scanning = false
	m.scan = 0
	m.deps.Arbiter.Release(camera.KindQR)
}

func (m *Machine) closeStreamLocked() {
	if m.stream == nil {
		return
	}
	_ = m.stream.Close()
	m.stream = nil
	m.deps.Arbiter.Release(camera.KindBiometric)
}

// failCameraLocked aborts to Idle after a camera capability failure.
func (m *Machine) failCameraLocked(err error) {
	m.resetLocked()
	m.err = err
	if errors.Is(err, camera.ErrPermissionDenied) {
		m.notice = NoticeCameraDenied
	} else {
		m.notice = NoticeCameraFailed
	}
}
