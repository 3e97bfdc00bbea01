// Package outbox delivers queued record and target events to the message broker.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"example.com/salestrack/pkg/events"
)

// MessageWriter publishes messages to a named topic.
type MessageWriter interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
}

// SchemaRegistrar resolves the registry id of an event schema.
type SchemaRegistrar interface {
	EnsureSchema(ctx context.Context, subject, schema string) (int, error)
}

// Message is one claimed outbox row.
type Message struct {
	EventID       int64
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// schemaCatalog lists the event types the dispatcher knows how to publish.
var schemaCatalog = map[string]string{
	events.TypeRecordCreated: recordChangedSchema,
	events.TypeRecordUpdated: recordChangedSchema,
	events.TypeTargetUpdated: targetUpdatedSchema,
}

// Dispatcher drains the outbox table. With a schema registry payloads carry the Confluent wire
// framing; without one they are sent as plain JSON.
type Dispatcher struct {
	pool      *pgxpool.Pool
	producer  MessageWriter
	registry  SchemaRegistrar
	dlq       *DLQWriter
	logger    *slog.Logger
	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	schemaIDs map[string]int
}

// NewDispatcher constructs a Dispatcher. registry and logger may be nil.
func NewDispatcher(pool *pgxpool.Pool, producer MessageWriter, registry SchemaRegistrar, interval time.Duration, batchSize int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		pool:      pool,
		producer:  producer,
		registry:  registry,
		dlq:       NewDLQWriter(pool),
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		schemaIDs: make(map[string]int),
	}
}

// Run publishes pending events every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.ErrorContext(ctx, "outbox dispatch failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// processBatch claims one batch and settles every event in it: published, or moved to the DLQ.
func (d *Dispatcher) processBatch(ctx context.Context) error {
	started := time.Now()
	claimed, err := d.claim(ctx)
	if err != nil || len(claimed) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(started).Seconds()) }()

	byTopic := make(map[string][]Message)
	records := make(map[string][]kafka.Message)
	var topics []string
	for _, msg := range claimed {
		record, encErr := d.record(ctx, msg)
		if encErr != nil {
			d.logger.WarnContext(ctx, "outbox event not encodable", "event_id", msg.EventID, "event_type", msg.EventType, "err", encErr)
			if err := d.deadLetter(ctx, encErr, msg); err != nil {
				return err
			}
			continue
		}
		if _, ok := byTopic[msg.Topic]; !ok {
			topics = append(topics, msg.Topic)
		}
		byTopic[msg.Topic] = append(byTopic[msg.Topic], msg)
		records[msg.Topic] = append(records[msg.Topic], record)
	}

	var errs []error
	for _, topic := range topics {
		msgs := byTopic[topic]
		if pubErr := d.producer.WriteMessages(ctx, topic, records[topic]...); pubErr != nil {
			d.logger.WarnContext(ctx, "publish failed, moving events to dlq", "topic", topic, "events", len(msgs), "err", pubErr)
			errs = append(errs, d.deadLetter(ctx, fmt.Errorf("publish to %s: %w", topic, pubErr), msgs...))
			continue
		}
		if err := d.markPublished(ctx, msgs); err != nil {
			errs = append(errs, err)
			continue
		}
		countPublished(msgs, outcomeDelivered)
	}
	return errors.Join(errs...)
}

// claim locks up to batchSize unpublished rows, stamps claimed_at, and returns them.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	var claimed []Message
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT event_id, user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
               FROM outbox
              WHERE published_at IS NULL
              ORDER BY event_id
              LIMIT $1
                FOR UPDATE SKIP LOCKED`, d.batchSize)
		if err != nil {
			return err
		}
		claimed, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
			var m Message
			err := row.Scan(&m.EventID, &m.UserID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Topic, &m.SchemaSubject, &m.PartitionKey, &m.Payload)
			return m, err
		})
		if err != nil || len(claimed) == 0 {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(claimed))
		return err
	})
	return claimed, err
}

// record builds the broker message for msg: partition key, headers, and encoded value.
func (d *Dispatcher) record(ctx context.Context, msg Message) (kafka.Message, error) {
	value, err := d.encode(ctx, msg)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(msg.EventType)},
			{Key: events.HeaderUserID, Value: []byte(msg.UserID)},
			{Key: events.HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
		},
	}, nil
}

func (d *Dispatcher) encode(ctx context.Context, msg Message) ([]byte, error) {
	schema, ok := schemaCatalog[msg.EventType]
	if !ok {
		return nil, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}
	if d.registry == nil {
		return msg.Payload, nil
	}
	id, err := d.schemaID(ctx, msg.SchemaSubject, schema)
	if err != nil {
		return nil, fmt.Errorf("resolve schema %s: %w", msg.SchemaSubject, err)
	}
	return encodeWireFormat(id, msg.Payload), nil
}

// schemaID asks the registry once per subject and schema, then serves the cached id.
func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	key := subject + "\x00" + schema
	d.mu.Lock()
	id, ok := d.schemaIDs[key]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.schemaIDs[key] = id
	d.mu.Unlock()
	return id, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, msgs []Message) error {
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(msgs))
	return err
}

func (d *Dispatcher) deadLetter(ctx context.Context, cause error, msgs ...Message) error {
	if err := d.dlq.Write(ctx, cause.Error(), msgs...); err != nil {
		return fmt.Errorf("write dlq: %w", err)
	}
	countPublished(msgs, outcomeDeadLettered)
	return nil
}

func eventIDs(msgs []Message) []int64 {
	ids := make([]int64, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.EventID
	}
	return ids
}

// encodeWireFormat prefixes payload with a zero magic byte and the big-endian schema id.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	return append(frame, payload...)
}
