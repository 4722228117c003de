package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"qrface/internal/queue"
)

// StatusUpdater marks stored records.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status string) error
}

// Tally counts confirmed check-ins per session meeting.
type Tally interface {
	Incr(ctx context.Context, sessionID string, meeting int) (int64, error)
}

// RedisTally keeps one hash per session, field = meeting number.
type RedisTally struct {
	client *redis.Client
	prefix string
}

// NewRedisTally creates a tally under attendance:tally:<session>.
func NewRedisTally(client *redis.Client) *RedisTally {
	return &RedisTally{client: client, prefix: "attendance:tally:"}
}

func (t *RedisTally) Incr(ctx context.Context, sessionID string, meeting int) (int64, error) {
	return t.client.HIncrBy(ctx, t.prefix+sessionID, strconv.Itoa(meeting), 1).Result()
}

// Counts returns meeting number to count for a session.
func (t *RedisTally) Counts(ctx context.Context, sessionID string) (map[int]int64, error) {
	raw, err := t.client.HGetAll(ctx, t.prefix+sessionID).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[int]int64, len(raw))
	for k, v := range raw {
		m, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[m] = n
	}
	return out, nil
}

// Processor confirms recorded check-ins pulled off the queue.
type Processor struct {
	Records StatusUpdater
	// Tally is optional.
	Tally Tally
}

// ErrSkipped is returned for messages the processor does not handle.
var ErrSkipped = errors.New("message skipped")

// Handle processes one queue message.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != MessageRecorded {
		return ErrSkipped
	}
	var evt RecordedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	if evt.RecordID == "" {
		return fmt.Errorf("decode %s: record_id missing", msg.Type)
	}
	if err := p.Records.UpdateStatus(ctx, evt.RecordID, StatusPresent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record %s not found", evt.RecordID)
		}
		return fmt.Errorf("mark %s present: %w", evt.RecordID, err)
	}
	if p.Tally != nil {
		if _, err := p.Tally.Incr(ctx, evt.SessionID, evt.MeetingNumber); err != nil {
			return fmt.Errorf("tally %s/%d: %w", evt.SessionID, evt.MeetingNumber, err)
		}
	}
	return nil
}
