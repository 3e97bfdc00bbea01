// Package postgres persists users, activity records, and monthly targets in Postgres and
// writes change events to the transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/salestrack/internal/domain"
	"example.com/salestrack/pkg/events"
)

const uniqueViolation = "23505"

// Repository implements domain.Store on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ domain.Store = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// CreateUser implements domain.UserRepository.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	const stmt = `INSERT INTO users (id, username, password_hash, created_at) VALUES ($1,$2,$3,$4)`

	_, err := r.pool.Exec(ctx, stmt, user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrUsernameTaken
	}
	return err
}

// GetUserByID implements domain.UserRepository.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	const query = `SELECT id::text, username, password_hash, created_at FROM users WHERE id=$1`
	return r.getUser(ctx, query, id)
}

// GetUserByUsername implements domain.UserRepository.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT id::text, username, password_hash, created_at FROM users WHERE username=$1`
	return r.getUser(ctx, query, username)
}

func (r *Repository) getUser(ctx context.Context, query string, arg string) (*domain.User, error) {
	var user domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	AggregateType string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeRecordCreated: {
		Topic:         "sales_records",
		SchemaSubject: "sales_records-value",
		AggregateType: "activity_record",
	},
	events.TypeRecordUpdated: {
		Topic:         "sales_records",
		SchemaSubject: "sales_records-value",
		AggregateType: "activity_record",
	},
	events.TypeTargetUpdated: {
		Topic:         "sales_targets",
		SchemaSubject: "sales_targets-value",
		AggregateType: "monthly_target",
	},
}

// outboxEvent is one row queued for the dispatcher.
type outboxEvent struct {
	UserID      string
	AggregateID int64
	EventType   string
	OccurredAt  time.Time
	Payload     any
}

// insertOutbox queues an event inside the caller's transaction. Events are partitioned
// by user so a consumer sees one user's changes in order.
func insertOutbox(ctx context.Context, tx pgx.Tx, ev outboxEvent) error {
	meta, ok := eventCatalog[ev.EventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", ev.EventType)
	}
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}

	aggregateID := strconv.FormatInt(ev.AggregateID, 10)
	dedupeKey := fmt.Sprintf("%s:%s:%s:%d", meta.AggregateType, aggregateID, ev.EventType, ev.OccurredAt.UnixNano())

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		ev.UserID,
		meta.AggregateType,
		aggregateID,
		ev.EventType,
		meta.Topic,
		meta.SchemaSubject,
		ev.UserID,
		body,
		dedupeKey,
	)
	return err
}

// inTx runs fn in a transaction and commits when it returns nil.
func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
