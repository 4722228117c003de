package qrpayload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
)

// MaxWireBytes bounds the encoded payload so it always fits a medium-recovery QR symbol.
const MaxWireBytes = 512

// ErrDecode is matched by every DecodeError.
var ErrDecode = errors.New("invalid check-in code")

// DecodeError describes why a scanned string is not a check-in payload.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "invalid check-in code: " + e.Reason }

// Is lets errors.Is(err, ErrDecode) match.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Payload is the content of a session QR code.
type Payload struct {
	SessionID     string
	MeetingNumber int
	IssuedAt      time.Time
}

// wire is the QR text layout shared with the lecturer and student screens.
type wire struct {
	SessionID     string          `json:"id_jadwal"`
	MeetingNumber json.RawMessage `json:"pertemuan"`
	IssuedAt      string          `json:"timestamp"`
}

// Codec encodes and decodes check-in payloads. The zero value uses time.Now.
type Codec struct {
	Now func() time.Time
}

var std Codec

// Encode builds the wire string for a meeting using the current time as IssuedAt.
func Encode(sessionID string, meetingNumber int) (string, Payload, error) {
	return std.Encode(sessionID, meetingNumber)
}

// Decode parses a scanned wire string.
func Decode(s string) (Payload, error) {
	return std.Decode(s)
}

// Encode builds the wire string for a meeting using the codec clock as IssuedAt.
func (c Codec) Encode(sessionID string, meetingNumber int) (string, Payload, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", Payload{}, errors.New("session id required")
	}
	if meetingNumber <= 0 {
		return "", Payload{}, fmt.Errorf("meeting number must be positive, got %d", meetingNumber)
	}
	p := Payload{
		SessionID:     sessionID,
		MeetingNumber: meetingNumber,
		IssuedAt:      c.now().UTC(),
	}
	b, err := json.Marshal(wire{
		SessionID:     p.SessionID,
		MeetingNumber: json.RawMessage(strconv.Itoa(p.MeetingNumber)),
		IssuedAt:      p.IssuedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", Payload{}, fmt.Errorf("encode payload: %w", err)
	}
	if len(b) > MaxWireBytes {
		return "", Payload{}, fmt.Errorf("payload too large for qr symbol: %d bytes", len(b))
	}
	return string(b), p, nil
}

// Decode parses a scanned wire string. It never panics; every failure is a *DecodeError.
func (c Codec) Decode(s string) (Payload, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Payload{}, &DecodeError{Reason: "empty"}
	}
	if len(s) > MaxWireBytes {
		return Payload{}, &DecodeError{Reason: "too long"}
	}
	var w wire
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&w); err != nil {
		return Payload{}, &DecodeError{Reason: "not structured data"}
	}
	if dec.More() {
		return Payload{}, &DecodeError{Reason: "trailing data"}
	}

	sessionID := strings.TrimSpace(w.SessionID)
	if sessionID == "" {
		return Payload{}, &DecodeError{Reason: "missing id_jadwal"}
	}
	meeting, err := parseMeeting(w.MeetingNumber)
	if err != nil {
		return Payload{}, &DecodeError{Reason: err.Error()}
	}
	if w.IssuedAt == "" {
		return Payload{}, &DecodeError{Reason: "missing timestamp"}
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, w.IssuedAt)
	if err != nil {
		return Payload{}, &DecodeError{Reason: "bad timestamp"}
	}
	return Payload{SessionID: sessionID, MeetingNumber: meeting, IssuedAt: issuedAt.UTC()}, nil
}

// parseMeeting accepts an integer or an integer-as-string.
func parseMeeting(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing pertemuan")
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		var str string
		if json.Unmarshal(raw, &str) != nil {
			return 0, errors.New("bad pertemuan")
		}
		n, err = strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return 0, errors.New("bad pertemuan")
		}
	}
	if n <= 0 {
		return 0, errors.New("pertemuan must be positive")
	}
	return n, nil
}

// PNG renders a wire string as a QR code image of size x size pixels.
func PNG(wireText string, size int) ([]byte, error) {
	if len(wireText) == 0 || len(wireText) > MaxWireBytes {
		return nil, fmt.Errorf("payload length %d out of range", len(wireText))
	}
	if size <= 0 {
		size = 300
	}
	png, err := qrcode.Encode(wireText, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

func (c Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
