package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied is reported when the platform refuses camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrBusy is returned when another logical capture session holds the device.
	ErrBusy = errors.New("camera busy")
	// ErrClosed is returned by a stream after Close.
	ErrClosed = errors.New("camera stream closed")
)

// Kind names a logical capture session sharing the physical camera.
type Kind int

const (
	KindQR Kind = iota + 1
	KindBiometric
)

func (k Kind) String() string {
	switch k {
	case KindQR:
		return "qr"
	case KindBiometric:
		return "biometric"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is a single still pulled from a live stream.
type Frame struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// Handle identifies a running QR scan.
type Handle uint64

// QRScanner repeatedly scans camera frames for a QR symbol and invokes onDecode
// with the raw text of every symbol read. Stop must be safe to call from within
// onDecode.
type QRScanner interface {
	Start(onDecode func(text string)) (Handle, error)
	Stop(h Handle) error
}

// BiometricCamera opens a live stream used for face capture.
type BiometricCamera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open biometric camera session.
type Stream interface {
	Frame(ctx context.Context) (Frame, error)
	Close() error
}

// Arbiter guards the single physical camera so that only one logical session
// holds it at a time.
type Arbiter struct {
	mu     sync.Mutex
	holder Kind
}

// NewArbiter returns an arbiter with the camera free.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// Acquire claims the camera for kind. Re-acquiring by the current holder is a no-op.
func (a *Arbiter) Acquire(kind Kind) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder != 0 && a.holder != kind {
		return fmt.Errorf("%w: held by %s", ErrBusy, a.holder)
	}
	a.holder = kind
	return nil
}

// Release frees the camera if kind holds it.
func (a *Arbiter) Release(kind Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == kind {
		a.holder = 0
	}
}

// Active reports which session currently holds the camera.
func (a *Arbiter) Active() (Kind, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder, a.holder != 0
}
