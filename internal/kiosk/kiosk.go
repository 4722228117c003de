// Package kiosk drives the check-in and enrollment flows from a line-oriented
// terminal. A keyboard-wedge QR scanner types into the same input, so while a
// scan is active any line that is not a command is treated as a QR read.
package kiosk

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"qrface/internal/biometric"
	"qrface/internal/camera"
	"qrface/internal/enrollment"
	"qrface/internal/profile"
	"qrface/internal/verify"
)

// ProfileSource loads the signed-in student's profile.
type ProfileSource interface {
	Get(ctx context.Context, email string) (*profile.Profile, error)
}

// Deps are the capabilities the terminal wires together.
type Deps struct {
	Profiles  ProfileSource
	Updater   enrollment.ProfileUpdater
	Scanner   *camera.LineScanner
	Camera    camera.BiometricCamera
	Extractor biometric.Extractor
	Submitter verify.Submitter
}

// Kiosk is one terminal session for a single student.
type Kiosk struct {
	email string
	deps  Deps
	out   io.Writer

	arbiter   *camera.Arbiter
	studentID string
	machine   *verify.Machine

	// CaptureTimeout bounds one capture-and-submit round.
	CaptureTimeout time.Duration
	// EnrollAttempts is how many failed captures enrollment tolerates.
	EnrollAttempts int
}

// New creates a terminal for the student with the given email.
func New(email string, deps Deps, out io.Writer) *Kiosk {
	return &Kiosk{
		email:          email,
		deps:           deps,
		out:            out,
		arbiter:        camera.NewArbiter(),
		CaptureTimeout: 20 * time.Second,
		EnrollAttempts: 3,
	}
}

// Load fetches the profile and prepares a verification machine with its template.
func (k *Kiosk) Load(ctx context.Context) error {
	p, err := k.deps.Profiles.Get(ctx, k.email)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", k.email, err)
	}
	if p.StudentID == "" {
		return fmt.Errorf("profile %s has no npm", k.email)
	}
	tpl, err := p.Template()
	if err != nil {
		// An unreadable descriptor is treated as not enrolled.
		k.printf("stored face data unreadable (%v), enroll again", err)
		tpl = nil
	}
	k.studentID = p.StudentID
	k.reset(tpl)
	return nil
}

func (k *Kiosk) reset(tpl *biometric.Template) {
	if k.machine != nil {
		k.machine.Cancel()
	}
	k.machine = verify.New(verify.Session{StudentID: k.studentID, Template: tpl}, verify.Deps{
		Scanner:   k.deps.Scanner,
		Camera:    k.deps.Camera,
		Arbiter:   k.arbiter,
		Extractor: k.deps.Extractor,
		Submitter: k.deps.Submitter,
	})
}

// Machine returns the current verification machine.
func (k *Kiosk) Machine() *verify.Machine { return k.machine }

// Run reads commands until quit, EOF or ctx ends.
func (k *Kiosk) Run(ctx context.Context, in io.Reader) error {
	if k.machine == nil {
		return errors.New("kiosk not loaded")
	}
	defer k.machine.Cancel()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	k.printf("ready, type help for commands")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			if quit := k.Exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// Exec handles one input line and reports whether the session should end.
func (k *Kiosk) Exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd := strings.ToLower(line)

	var err error
	switch cmd {
	case "quit", "exit":
		k.machine.Cancel()
		k.printf("bye")
		return true
	case "help":
		k.printf("commands: scan, capture, retry, resubmit, cancel, enroll, status, quit")
		return false
	case "status":
	case "scan":
		err = k.machine.StartScan(ctx)
	case "capture":
		cctx, cancel := context.WithTimeout(ctx, k.CaptureTimeout)
		_, err = k.machine.Capture(cctx)
		cancel()
	case "retry":
		err = k.machine.Retry()
	case "resubmit":
		cctx, cancel := context.WithTimeout(ctx, k.CaptureTimeout)
		_, err = k.machine.RetrySubmit(cctx)
		cancel()
	case "cancel":
		k.machine.Cancel()
	case "enroll":
		err = k.enroll(ctx)
	default:
		if !k.deps.Scanner.Feed(line) {
			k.printf("unknown command %q, type help", line)
			return false
		}
	}
	if err != nil {
		k.printf("error: %v", err)
	}
	k.status()
	return false
}

func (k *Kiosk) enroll(ctx context.Context) error {
	switch k.machine.State() {
	case verify.Idle, verify.NeedsEnrollment, verify.Submitted:
	default:
		return fmt.Errorf("%w: finish or cancel the current check-in first", verify.ErrInvalidState)
	}
	k.machine.Cancel()

	cctx, cancel := context.WithTimeout(ctx, k.CaptureTimeout)
	defer cancel()
	tpl, err := enrollment.Enroll(cctx, k.studentID, k.email, enrollment.Deps{
		Camera:    k.deps.Camera,
		Arbiter:   k.arbiter,
		Extractor: k.deps.Extractor,
		Profiles:  k.deps.Updater,
	}, k.EnrollAttempts)
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}
	k.reset(&tpl)
	k.printf("face enrolled")
	return nil
}

func (k *Kiosk) status() {
	s := k.machine.Snapshot()
	msg := fmt.Sprintf("[%s]", s.State)
	if s.Attempt != nil {
		msg += fmt.Sprintf(" %s meeting %d", s.Attempt.Payload.SessionID, s.Attempt.Payload.MeetingNumber)
		if s.Attempt.Distance != nil {
			msg += fmt.Sprintf(" distance %.3f", *s.Attempt.Distance)
		}
	}
	if s.Notice != "" {
		msg += " " + s.Notice
	}
	k.printf("%s", msg)
}

func (k *Kiosk) printf(format string, args ...any) {
	fmt.Fprintf(k.out, format+"\n", args...)
}
