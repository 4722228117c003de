package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/exec"
	"sync"
	"time"
)

// CommandCamera captures stills by running an external snapshot command
// (for example `fswebcam --no-banner -`) that writes one image to stdout.
type CommandCamera struct {
	Command []string
	Timeout time.Duration
}

// Open checks the snapshot command is runnable and returns a stream over it.
func (c *CommandCamera) Open(ctx context.Context) (Stream, error) {
	if len(c.Command) == 0 {
		return nil, errors.New("snapshot command not configured")
	}
	if _, err := exec.LookPath(c.Command[0]); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("snapshot command unavailable: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &commandStream{argv: c.Command, timeout: timeout}, nil
}

type commandStream struct {
	argv    []string
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *commandStream) Frame(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Frame{}, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return Frame{}, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return Frame{}, fmt.Errorf("snapshot failed: %w: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return Frame{}, errors.New("snapshot produced no data")
	}
	data := stdout.Bytes()
	return Frame{
		Data:        data,
		ContentType: http.DetectContentType(data),
		CapturedAt:  time.Now().UTC(),
	}, nil
}

func (s *commandStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
