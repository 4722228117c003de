package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrface/internal/queue"
)

type memRecords struct {
	mu      sync.Mutex
	records []Record
	findErr error
	// raceDup makes Insert report a duplicate as if a concurrent insert won.
	raceDup bool
}

func (m *memRecords) Find(_ context.Context, student, session string, meeting int) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, r := range m.records {
		if r.StudentID == student && r.SessionID == session && r.MeetingNumber == meeting {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memRecords) Insert(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raceDup {
		return Record{}, ErrDuplicate
	}
	rec.ID = "rec-" + rec.StudentID
	m.records = append(m.records, rec)
	return rec, nil
}

type issuedSet map[time.Time]bool

func (s issuedSet) Known(_ context.Context, _ string, _ int, at time.Time) (bool, error) {
	for t := range s {
		if t.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

var serverNow = time.Date(2026, 3, 2, 8, 10, 0, 0, time.UTC)

func newTestService(t *testing.T, issued IssuanceChecker) (*Service, *memRecords, *queue.InMemory, *[]string) {
	t.Helper()
	recs := &memRecords{}
	q := queue.NewInMemory(8)
	svc := NewService(recs, issued, q, 0)
	svc.Now = func() time.Time { return serverNow }
	var results []string
	svc.OnResult = func(r string) { results = append(results, r) }
	return svc, recs, q, &results
}

func validRequest() Request {
	return Request{StudentID: "2021001", SessionID: "S1", MeetingNumber: 3, IssuedAt: serverNow.Add(-time.Minute)}
}

func TestSubmitAccepts(t *testing.T) {
	svc, recs, q, results := newTestService(t, issuedSet{serverNow.Add(-time.Minute): true})

	resp, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, MsgRecorded, resp.Message)
	require.Len(t, recs.records, 1)
	assert.Equal(t, StatusPending, recs.records[0].Status)
	assert.Equal(t, []string{ResultAccepted}, *results)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := <-ch
	assert.Equal(t, MessageRecorded, msg.Type)
	var evt RecordedEvent
	require.NoError(t, json.Unmarshal(msg.Body, &evt))
	assert.Equal(t, RecordedEvent{RecordID: "rec-2021001", StudentID: "2021001", SessionID: "S1", MeetingNumber: 3}, evt)
}

func TestSubmitRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		msg    string
		result string
	}{
		{"missing student", func(r *Request) { r.StudentID = "  " }, MsgMissingFields, ResultInvalid},
		{"missing session", func(r *Request) { r.SessionID = "" }, MsgMissingFields, ResultInvalid},
		{"zero meeting", func(r *Request) { r.MeetingNumber = 0 }, MsgMissingFields, ResultInvalid},
		{"zero timestamp", func(r *Request) { r.IssuedAt = time.Time{} }, MsgMissingFields, ResultInvalid},
		{"expired", func(r *Request) { r.IssuedAt = serverNow.Add(-6 * time.Minute) }, MsgExpired, ResultExpired},
		{"future", func(r *Request) { r.IssuedAt = serverNow.Add(time.Minute) }, MsgFromFuture, ResultInvalid},
		{"forged", func(r *Request) { r.IssuedAt = serverNow.Add(-2 * time.Minute) }, MsgUnknownCode, ResultUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, recs, _, results := newTestService(t, issuedSet{serverNow.Add(-time.Minute): true})
			req := validRequest()
			tt.mutate(&req)

			resp, err := svc.Submit(context.Background(), req)
			require.NoError(t, err)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.msg, resp.Message)
			assert.Empty(t, recs.records)
			assert.Equal(t, []string{tt.result}, *results)
		})
	}
}

func TestSubmitToleratesSmallClockSkew(t *testing.T) {
	at := serverNow.Add(20 * time.Second)
	svc, _, _, _ := newTestService(t, issuedSet{at: true})
	req := validRequest()
	req.IssuedAt = at

	resp, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestSubmitDuplicate(t *testing.T) {
	svc, recs, _, results := newTestService(t, nil)

	_, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	resp, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, MsgAlreadyRecorded, resp.Message)
	assert.Len(t, recs.records, 1)
	assert.Equal(t, []string{ResultAccepted, ResultDuplicate}, *results)

	recs.records = nil
	recs.raceDup = true
	resp, err = svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, MsgAlreadyRecorded, resp.Message)
}

func TestSubmitStorageError(t *testing.T) {
	svc, recs, _, results := newTestService(t, nil)
	recs.findErr = errors.New("db down")

	_, err := svc.Submit(context.Background(), validRequest())
	assert.EqualError(t, err, "db down")
	assert.Equal(t, []string{ResultError}, *results)
}

func TestDefaultWindow(t *testing.T) {
	svc := NewService(&memRecords{}, nil, nil, 0)
	assert.Equal(t, DefaultFreshnessWindow, svc.Window())
}
