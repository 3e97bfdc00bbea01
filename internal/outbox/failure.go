package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter moves undeliverable outbox events to outbox_dlq.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter returns a writer over pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write copies msgs into the DLQ, due for an immediate retry, and closes their outbox rows in
// the same transaction.
func (w *DLQWriter) Write(ctx context.Context, reason string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		ids := make([]int64, 0, len(msgs))
		for _, msg := range msgs {
			batch.Queue(
				`INSERT INTO outbox_dlq (user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
                 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
				msg.UserID, msg.EventID, msg.EventType, msg.Topic, msg.Payload,
				fmt.Sprintf("%s (topic=%s)", reason, msg.Topic),
				msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
			)
			ids = append(ids, msg.EventID)
		}
		batch.Queue(`UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
		return tx.SendBatch(ctx, batch).Close()
	})
}
