package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxBackoff = time.Hour

// DLQManager replays dead-lettered events into the outbox. Entries that keep failing are
// rescheduled with exponential backoff and quarantined once maxRetries is reached. Several
// managers may run against the same database; each entry is locked while it is handled.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewDLQManager returns a manager. Non-positive settings fall back to 5 retries and a one
// minute base delay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		requeued, err := m.RunOnce(ctx, batchSize)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.logger.ErrorContext(ctx, "dlq replay failed", "requeued", requeued, "err", err)
		case requeued > 0:
			m.logger.InfoContext(ctx, "dlq replay", "requeued", requeued)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce handles up to batchSize due entries, each at most once, and returns how many went
// back to the outbox.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	requeued := 0
	seen := make([]int64, 0, batchSize)
	var err error
	for len(seen) < batchSize {
		id, action, stepErr := m.handleNext(ctx, seen)
		if stepErr != nil {
			err = stepErr
			break
		}
		if id == 0 {
			break
		}
		seen = append(seen, id)
		if action == actionRequeued {
			requeued++
		}
	}

	if gaugeErr := refreshBacklog(ctx, m.pool); gaugeErr != nil {
		m.logger.WarnContext(ctx, "refresh dlq backlog gauge", "err", gaugeErr)
	}
	return requeued, err
}

// handleNext locks the oldest due entry not in skip and requeues, reschedules or quarantines
// it. A zero id means nothing was due.
func (m *DLQManager) handleNext(ctx context.Context, skip []int64) (id int64, action string, err error) {
	err = pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT dlq_id, user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
               FROM outbox_dlq
              WHERE quarantined_at IS NULL
                AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                AND NOT (dlq_id = ANY($1))
              ORDER BY created_at, dlq_id
              LIMIT 1
                FOR UPDATE SKIP LOCKED`, skip)
		if err != nil {
			return err
		}
		entry, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[dlqEntry])
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		id = entry.ID

		action, err = m.settle(ctx, tx, entry)
		if err != nil {
			return err
		}
		countDLQ(entry, action)
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return id, action, nil
}

func (m *DLQManager) settle(ctx context.Context, tx pgx.Tx, entry dlqEntry) (string, error) {
	if entry.RetryCount >= m.maxRetries {
		_, err := tx.Exec(ctx,
			`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			fmt.Sprintf("retry limit reached after %d attempts: %s", entry.RetryCount, entry.Reason), entry.ID)
		if err != nil {
			return "", err
		}
		m.logger.WarnContext(ctx, "dlq entry quarantined", "dlq_id", entry.ID, "event_type", entry.EventType, "user_id", entry.UserID, "retries", entry.RetryCount)
		return actionQuarantined, nil
	}

	// The savepoint keeps the row lock when the insert fails.
	requeueErr := pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
		if err := requeue(ctx, sp, entry); err != nil {
			return err
		}
		_, err := sp.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
		return err
	})
	if requeueErr == nil {
		return actionRequeued, nil
	}

	delay := m.backoffDelay(entry.RetryCount + 1)
	_, err := tx.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval,
                reason = $2
          WHERE dlq_id = $3`,
		delay, requeueErr.Error(), entry.ID)
	if err != nil {
		return "", err
	}
	m.logger.InfoContext(ctx, "dlq entry rescheduled", "dlq_id", entry.ID, "retry_in", delay, "err", requeueErr)
	return actionRescheduled, nil
}

// backoffDelay is baseDelay doubled per prior attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := m.baseDelay
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxBackoff)
}

// requeue writes entry back to the outbox as a fresh event.
func requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("dlq entry %d has no schema_subject", entry.ID)
	}
	if _, ok := schemaCatalog[entry.EventType]; !ok {
		return fmt.Errorf("dlq entry %d has unknown event_type %q", entry.ID, entry.EventType)
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.UserID, entry.AggregateType, entry.AggregateID, entry.EventType,
		entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload)
	return err
}

// dlqEntry mirrors the selected outbox_dlq columns, in order.
type dlqEntry struct {
	ID            int64
	UserID        string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}
