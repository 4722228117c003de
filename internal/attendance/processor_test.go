package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrface/internal/queue"
)

type statusLog struct {
	updates map[string]string
	err     error
}

func (s *statusLog) UpdateStatus(_ context.Context, id, status string) error {
	if s.err != nil {
		return s.err
	}
	if s.updates == nil {
		s.updates = map[string]string{}
	}
	s.updates[id] = status
	return nil
}

type countTally map[string]int64

func (c countTally) Incr(_ context.Context, session string, meeting int) (int64, error) {
	k := fmt.Sprintf("%s/%d", session, meeting)
	c[k]++
	return c[k], nil
}

func recordedMessage(t *testing.T, evt RecordedEvent) queue.Message {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return queue.Message{Type: MessageRecorded, Body: body}
}

func TestProcessorMarksPresent(t *testing.T) {
	st := &statusLog{}
	tally := countTally{}
	p := &Processor{Records: st, Tally: tally}

	err := p.Handle(context.Background(), recordedMessage(t, RecordedEvent{RecordID: "r1", SessionID: "S1", MeetingNumber: 2}))
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, st.updates["r1"])
	assert.Equal(t, int64(1), tally["S1/2"])
}

func TestProcessorErrors(t *testing.T) {
	p := &Processor{Records: &statusLog{}}
	assert.ErrorIs(t, p.Handle(context.Background(), queue.Message{Type: "checkin"}), ErrSkipped)
	assert.Error(t, p.Handle(context.Background(), queue.Message{Type: MessageRecorded, Body: []byte(`{`)}))
	assert.Error(t, p.Handle(context.Background(), recordedMessage(t, RecordedEvent{SessionID: "S1"})))

	p = &Processor{Records: &statusLog{err: sql.ErrNoRows}}
	assert.ErrorContains(t, p.Handle(context.Background(), recordedMessage(t, RecordedEvent{RecordID: "gone"})), "not found")

	p = &Processor{Records: &statusLog{err: errors.New("db down")}}
	assert.ErrorContains(t, p.Handle(context.Background(), recordedMessage(t, RecordedEvent{RecordID: "r"})), "db down")
}
