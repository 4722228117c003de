package sessions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"qrface/internal/qrpayload"
)

// ErrNotIssued is returned when no live code exists for a session meeting.
var ErrNotIssued = errors.New("code not issued")

// Registry stores the latest issued code per session meeting for a TTL.
type Registry interface {
	Record(ctx context.Context, p qrpayload.Payload, wire string, ttl time.Duration) error
	Latest(ctx context.Context, sessionID string, meeting int) (Issued, error)
}

// Issued is a code a lecturer displayed.
type Issued struct {
	Payload qrpayload.Payload
	Wire    string
}

// Memory is an in-process registry for dev/testing.
type Memory struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

type memItem struct {
	issued  Issued
	expires time.Time
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]memItem), now: time.Now}
}

func (m *Memory) Record(_ context.Context, p qrpayload.Payload, wire string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key(p.SessionID, p.MeetingNumber)] = memItem{
		issued:  Issued{Payload: p, Wire: wire},
		expires: m.now().Add(ttl),
	}
	return nil
}

func (m *Memory) Latest(_ context.Context, sessionID string, meeting int) (Issued, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(sessionID, meeting)
	it, ok := m.items[k]
	if !ok {
		return Issued{}, ErrNotIssued
	}
	if m.now().After(it.expires) {
		delete(m.items, k)
		return Issued{}, ErrNotIssued
	}
	return it.issued, nil
}

// RedisRegistry keeps issued codes as expiring Redis strings.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry builds a registry under the given key prefix.
func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "attendance:qr"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

func (r *RedisRegistry) Record(ctx context.Context, p qrpayload.Payload, wire string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+":"+key(p.SessionID, p.MeetingNumber), wire, ttl).Err()
}

func (r *RedisRegistry) Latest(ctx context.Context, sessionID string, meeting int) (Issued, error) {
	wire, err := r.client.Get(ctx, r.prefix+":"+key(sessionID, meeting)).Result()
	if errors.Is(err, redis.Nil) {
		return Issued{}, ErrNotIssued
	}
	if err != nil {
		return Issued{}, fmt.Errorf("registry lookup: %w", err)
	}
	p, err := qrpayload.Decode(wire)
	if err != nil {
		return Issued{}, fmt.Errorf("registry entry corrupt: %w", err)
	}
	return Issued{Payload: p, Wire: wire}, nil
}

func key(sessionID string, meeting int) string {
	return sessionID + "#" + strconv.Itoa(meeting)
}

// Issuer opens sessions for lecturers.
type Issuer struct {
	Registry Registry
	Codec    qrpayload.Codec
	// TTL is how long an issued code stays accepted; it matches the freshness window.
	TTL time.Duration
}

// Open encodes a fresh code for a meeting and records it.
func (i *Issuer) Open(ctx context.Context, sessionID string, meeting int) (Issued, error) {
	wire, p, err := i.Codec.Encode(sessionID, meeting)
	if err != nil {
		return Issued{}, err
	}
	if err := i.Registry.Record(ctx, p, wire, i.TTL); err != nil {
		return Issued{}, err
	}
	return Issued{Payload: p, Wire: wire}, nil
}

// Known reports whether issuedAt belongs to a live code for the meeting. A
// lecturer refreshing the QR supersedes the previous code.
func (i *Issuer) Known(ctx context.Context, sessionID string, meeting int, issuedAt time.Time) (bool, error) {
	latest, err := i.Registry.Latest(ctx, sessionID, meeting)
	if errors.Is(err, ErrNotIssued) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return latest.Payload.IssuedAt.Equal(issuedAt), nil
}
