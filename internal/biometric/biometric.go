package biometric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"qrface/internal/camera"
)

// MatchThreshold is the Euclidean distance below which two embeddings are the
// same identity. It is fixed for every user.
const MatchThreshold = 0.45

var (
	// ErrNoFace is returned by an Extractor when no face is detected in the frame.
	ErrNoFace = errors.New("no face detected")
	// ErrEmptyEmbedding is returned when comparing against a missing embedding.
	ErrEmptyEmbedding = errors.New("empty embedding")
	// ErrDimension is returned when two embeddings differ in length.
	ErrDimension = errors.New("embedding dimension mismatch")
)

// Embedding is a fixed-length face descriptor produced by the recognition model.
type Embedding []float64

// Template is the enrolled reference embedding for a student.
type Template struct {
	OwnerID    string
	Embedding  Embedding
	EnrolledAt time.Time
}

// Extractor turns a single camera frame into a face embedding.
type Extractor interface {
	Extract(ctx context.Context, frame camera.Frame) (Embedding, error)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Embedding) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyEmbedding
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimension, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Match compares a captured embedding with the enrolled one.
func Match(captured, enrolled Embedding) (float64, bool, error) {
	d, err := Distance(captured, enrolled)
	if err != nil {
		return 0, false, err
	}
	return d, d < MatchThreshold, nil
}

// EncodeDescriptor renders an embedding as the JSON array string stored on the profile.
func EncodeDescriptor(e Embedding) (string, error) {
	if len(e) == 0 {
		return "", ErrEmptyEmbedding
	}
	b, err := json.Marshal([]float64(e))
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	return string(b), nil
}

// ParseDescriptor reads a stored descriptor. Blank input yields a nil embedding.
func ParseDescriptor(s string) (Embedding, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil, nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("parse descriptor: non-finite value at %d", i)
		}
	}
	return Embedding(out), nil
}
