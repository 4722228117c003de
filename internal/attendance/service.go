package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"qrface/internal/queue"
)

// MessageRecorded is the queue message type published for every accepted check-in.
const MessageRecorded = "attendance.recorded"

// Submission results, used as metric labels.
const (
	ResultAccepted  = "accepted"
	ResultInvalid   = "invalid"
	ResultExpired   = "expired"
	ResultUnknown   = "unknown_code"
	ResultDuplicate = "duplicate"
	ResultError     = "error"
)

// Rejection messages returned to the kiosk.
const (
	MsgRecorded        = "attendance recorded"
	MsgMissingFields   = "nim, id_jadwal, pertemuan and qr_timestamp are required"
	MsgExpired         = "qr code expired, scan the current code"
	MsgFromFuture      = "qr timestamp is in the future"
	MsgUnknownCode     = "qr code was not issued for this session"
	MsgAlreadyRecorded = "already recorded"
)

// DefaultFreshnessWindow bounds how old a scanned code may be at submission.
const DefaultFreshnessWindow = 5 * time.Minute

// maxFutureSkew tolerates kiosk clocks running slightly ahead.
const maxFutureSkew = 30 * time.Second

// RecordStore is the persistence the service needs.
type RecordStore interface {
	Find(ctx context.Context, studentID, sessionID string, meeting int) (*Record, error)
	Insert(ctx context.Context, rec Record) (Record, error)
}

// IssuanceChecker reports whether a code was really issued by a lecturer.
type IssuanceChecker interface {
	Known(ctx context.Context, sessionID string, meeting int, issuedAt time.Time) (bool, error)
}

// RecordedEvent is the body of a MessageRecorded message.
type RecordedEvent struct {
	RecordID      string `json:"record_id"`
	StudentID     string `json:"nim"`
	SessionID     string `json:"id_jadwal"`
	MeetingNumber int    `json:"pertemuan"`
}

// Service validates and records verified check-ins.
type Service struct {
	records RecordStore
	issued  IssuanceChecker
	queue   queue.Queue
	window  time.Duration

	// Now is the server clock.
	Now func() time.Time
	// OnResult, when set, is called once per Submit with one of the Result constants.
	OnResult func(result string)
}

// NewService creates a service. issued and q may be nil to skip the forgery
// check and the post-processing queue.
func NewService(records RecordStore, issued IssuanceChecker, q queue.Queue, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return &Service{records: records, issued: issued, queue: q, window: window, Now: time.Now}
}

// Window returns the freshness window.
func (s *Service) Window() time.Duration { return s.window }

// Submit records one check-in. Rejections are returned as a Response with
// Success false; only storage failures are errors.
func (s *Service) Submit(ctx context.Context, r Request) (Response, error) {
	resp, result, err := s.submit(ctx, r)
	if s.OnResult != nil {
		s.OnResult(result)
	}
	return resp, err
}

func (s *Service) submit(ctx context.Context, r Request) (Response, string, error) {
	r.StudentID = strings.TrimSpace(r.StudentID)
	r.SessionID = strings.TrimSpace(r.SessionID)
	if r.StudentID == "" || r.SessionID == "" || r.MeetingNumber <= 0 || r.IssuedAt.IsZero() {
		return reject(MsgMissingFields), ResultInvalid, nil
	}

	now := s.Now()
	age := now.Sub(r.IssuedAt)
	if age > s.window {
		return reject(MsgExpired), ResultExpired, nil
	}
	if age < -maxFutureSkew {
		return reject(MsgFromFuture), ResultInvalid, nil
	}

	if s.issued != nil {
		ok, err := s.issued.Known(ctx, r.SessionID, r.MeetingNumber, r.IssuedAt)
		if err != nil {
			return Response{}, ResultError, err
		}
		if !ok {
			return reject(MsgUnknownCode), ResultUnknown, nil
		}
	}

	existing, err := s.records.Find(ctx, r.StudentID, r.SessionID, r.MeetingNumber)
	if err != nil {
		return Response{}, ResultError, err
	}
	if existing != nil {
		return reject(MsgAlreadyRecorded), ResultDuplicate, nil
	}

	rec, err := s.records.Insert(ctx, Record{
		StudentID:     r.StudentID,
		SessionID:     r.SessionID,
		MeetingNumber: r.MeetingNumber,
		IssuedAt:      r.IssuedAt,
		Status:        StatusPending,
	})
	if errors.Is(err, ErrDuplicate) {
		return reject(MsgAlreadyRecorded), ResultDuplicate, nil
	}
	if err != nil {
		return Response{}, ResultError, err
	}

	if s.queue != nil {
		body, _ := json.Marshal(RecordedEvent{
			RecordID:      rec.ID,
			StudentID:     rec.StudentID,
			SessionID:     rec.SessionID,
			MeetingNumber: rec.MeetingNumber,
		})
		// The record stays pending if the worker never sees it; the check-in itself is stored.
		if err := s.queue.Publish(ctx, queue.Message{Type: MessageRecorded, Body: body}); err != nil {
			log.Printf("attendance: publish %s failed: %v", rec.ID, err)
		}
	}
	return Response{Success: true, Message: MsgRecorded}, ResultAccepted, nil
}

func reject(msg string) Response {
	return Response{Success: false, Message: msg}
}
