package verify

import (
	"fmt"

	"qrface/internal/biometric"
	"qrface/internal/qrpayload"
)

// State is a step of the verification modal.
type State int

const (
	Idle State = iota
	Scanning
	Decoded
	CameraOpen
	Capturing
	NoFace
	Mismatched
	Matched
	Submitting
	Submitted
	SubmissionFailed
	NeedsEnrollment
)

var stateNames = [...]string{
	Idle:             "idle",
	Scanning:         "scanning",
	Decoded:          "decoded",
	CameraOpen:       "camera-open",
	Capturing:        "capturing",
	NoFace:           "no-face",
	Mismatched:       "mismatched",
	Matched:          "matched",
	Submitting:       "submitting",
	Submitted:        "submitted",
	SubmissionFailed: "submission-failed",
	NeedsEnrollment:  "needs-enrollment",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is the result recorded on an attempt.
type Outcome string

const (
	OutcomePending          Outcome = "pending"
	OutcomeNoFace           Outcome = "no-face-detected"
	OutcomeMismatch         Outcome = "mismatch"
	OutcomeMatched          Outcome = "matched"
	OutcomeSubmitted        Outcome = "submitted"
	OutcomeSubmissionFailed Outcome = "submission-failed"
)

// Attempt is the in-memory record of one check-in, discarded when the modal closes.
type Attempt struct {
	Payload           qrpayload.Payload
	CapturedEmbedding biometric.Embedding
	Distance          *float64
	Outcome           Outcome
}

func (a *Attempt) clone() *Attempt {
	c := *a
	if a.CapturedEmbedding != nil {
		c.CapturedEmbedding = append(biometric.Embedding(nil), a.CapturedEmbedding...)
	}
	if a.Distance != nil {
		d := *a.Distance
		c.Distance = &d
	}
	return &c
}
