package camtest

import (
	"context"
	"sync"
	"time"

	"qrface/internal/biometric"
	"qrface/internal/camera"
)

// Scanner is a QRScanner whose reads are injected with Read.
type Scanner struct {
	mu       sync.Mutex
	next     camera.Handle
	active   camera.Handle
	onDecode func(string)
	Starts   int
	StartErr error
}

func (s *Scanner) Start(onDecode func(string)) (camera.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return 0, s.StartErr
	}
	if s.active != 0 {
		return 0, camera.ErrBusy
	}
	s.Starts++
	s.next++
	s.active = s.next
	s.onDecode = onDecode
	return s.active, nil
}

func (s *Scanner) Stop(h camera.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == h {
		s.active = 0
		s.onDecode = nil
	}
	return nil
}

// Active reports whether a scan track is running.
func (s *Scanner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != 0
}

// Read simulates the scanner reading a symbol. It returns false when no scan is active.
func (s *Scanner) Read(text string) bool {
	s.mu.Lock()
	cb := s.onDecode
	s.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(text)
	return true
}

// Camera is a BiometricCamera tracking open streams.
type Camera struct {
	mu      sync.Mutex
	open    int
	Opens   int
	Frames  int
	OpenErr error
	// FrameErr, when set, fails the next Frame call once.
	FrameErr error
	// OnOpen, when set, runs while Open holds no locks.
	OnOpen func()
}

func (c *Camera) Open(ctx context.Context) (camera.Stream, error) {
	if c.OnOpen != nil {
		c.OnOpen()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	c.open++
	c.Opens++
	return &stream{cam: c}, nil
}

// ActiveTracks is the number of streams not yet closed.
func (c *Camera) ActiveTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

type stream struct {
	cam    *Camera
	closed bool
}

func (s *stream) Frame(ctx context.Context) (camera.Frame, error) {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	if s.closed {
		return camera.Frame{}, camera.ErrClosed
	}
	if err := s.cam.FrameErr; err != nil {
		s.cam.FrameErr = nil
		return camera.Frame{}, err
	}
	s.cam.Frames++
	return camera.Frame{Data: []byte("frame"), ContentType: "image/jpeg", CapturedAt: time.Now()}, nil
}

func (s *stream) Close() error {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.cam.open--
	}
	return nil
}

// Extractor returns queued results in order; the last one repeats.
type Extractor struct {
	mu      sync.Mutex
	Results []Result
	Calls   int
	// Gate, when set, blocks Extract until it receives or ctx is done.
	Gate chan struct{}
	// Entered, when set, is signalled as Extract starts.
	Entered chan struct{}
}

// Result is one Extract outcome.
type Result struct {
	Embedding biometric.Embedding
	Err       error
}

func (e *Extractor) Extract(ctx context.Context, _ camera.Frame) (biometric.Embedding, error) {
	e.mu.Lock()
	i := e.Calls
	e.Calls++
	gate, entered := e.Gate, e.Entered
	var r Result
	if len(e.Results) > 0 {
		if i >= len(e.Results) {
			i = len(e.Results) - 1
		}
		r = e.Results[i]
	}
	e.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.Embedding, r.Err
}

// At returns an embedding at exactly distance d from base along the first axis.
func At(base biometric.Embedding, d float64) biometric.Embedding {
	out := make(biometric.Embedding, len(base))
	copy(out, base)
	out[0] += d
	return out
}
