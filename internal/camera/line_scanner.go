package camera

import (
	"errors"
	"strings"
	"sync"
)

// LineScanner is a QRScanner for keyboard-wedge scanners: the host feeds every
// line the scanner types, and the line is delivered to the active callback.
type LineScanner struct {
	mu       sync.Mutex
	next     Handle
	active   Handle
	onDecode func(string)
}

// NewLineScanner returns an idle scanner.
func NewLineScanner() *LineScanner {
	return &LineScanner{}
}

// Start activates the scanner. Only one scan may run at a time.
func (s *LineScanner) Start(onDecode func(text string)) (Handle, error) {
	if onDecode == nil {
		return 0, errors.New("decode callback required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != 0 {
		return 0, ErrBusy
	}
	s.next++
	s.active = s.next
	s.onDecode = onDecode
	return s.active, nil
}

// Stop deactivates the scan identified by h. Stopping a stale handle is a no-op.
func (s *LineScanner) Stop(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == h {
		s.active = 0
		s.onDecode = nil
	}
	return nil
}

// Scanning reports whether a scan is active.
func (s *LineScanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != 0
}

// Feed delivers one scanned line. It returns false when no scan is active.
func (s *LineScanner) Feed(line string) bool {
	s.mu.Lock()
	cb := s.onDecode
	s.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(strings.TrimSpace(line))
	return true
}
