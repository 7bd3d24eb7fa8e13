package worker

// Dead letter queues. A receipt or email job that exhausts its retries is
// parked on a per-queue Redis list ("dlq:" + source queue) so an operator can
// inspect or replay it; nothing consumes these lists automatically.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

const dlqPrefix = "dlq:"

// dlqEntry is the stored form of a dead job: the original payload plus enough
// context to diagnose it without the worker logs.
type dlqEntry struct {
	OriginalQueue string          `json:"original_queue"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	FailedAt      string          `json:"failed_at"` // RFC 3339, UTC
	Attempts      int             `json:"attempts"`
}

// sendToDLQ parks a job that ran out of retries. Best-effort: a Redis failure
// here is logged and swallowed, the receipt row already carries the failure.
func (d *Dispatcher) sendToDLQ(ctx context.Context, queue, jobType string, payload json.RawMessage, reason string, attempts int) {
	entry := dlqEntry{
		OriginalQueue: queue,
		JobType:       jobType,
		Payload:       payload,
		Reason:        reason,
		FailedAt:      time.Now().UTC().Format(time.RFC3339),
		Attempts:      attempts,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: marshal entry")
		return
	}
	if err := d.rdb.LPush(ctx, dlqPrefix+queue, data).Err(); err != nil {
		log.Error().Err(err).Str("queue", dlqPrefix+queue).Msg("dlq: push")
		return
	}

	log.Warn().
		Str("queue", queue).
		Str("job_type", jobType).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("dlq: job parked after exhausting retries")
}

// DLQLength reports how many dead jobs a queue has accumulated.
func (d *Dispatcher) DLQLength(ctx context.Context, queue string) (int64, error) {
	return d.rdb.LLen(ctx, dlqPrefix+queue).Result()
}
