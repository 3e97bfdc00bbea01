// Package consumer reads published sales events and hands them to a Handler.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/salestrack/pkg/events"
)

// Reader is the part of *kafka.Reader the processor needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler consumes one decoded event. A returned error leaves the offset uncommitted and the
// same message is handed over again after the retry delay.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Message is a decoded record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetryDelay sets the pause after a failed fetch or handler call.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Processor) {
		p.retryDelay = d
	}
}

// Processor pulls messages, decodes them, and dispatches to a Handler. Offsets are only
// committed after the handler succeeds, and a failing message is retried in place so no
// later offset is committed past it. Malformed messages are committed and skipped.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     slog.Default().With("component", "consumer"),
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes until ctx is cancelled. Fetch errors are retried after the retry delay.
func (p *Processor) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		raw, err := p.reader.FetchMessage(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			p.logger.ErrorContext(ctx, "fetch failed", "err", err)
			if !sleep(ctx, p.retryDelay) {
				return ctx.Err()
			}
		default:
			p.process(ctx, raw)
		}
	}
	return ctx.Err()
}

// process decodes and handles one message. Malformed messages are committed so they do not
// block the partition. Handler failures retry the same message until it succeeds or ctx ends.
func (p *Processor) process(ctx context.Context, raw kafka.Message) {
	msg, err := decodeMessage(raw)
	if err != nil {
		p.logger.WarnContext(ctx, "skipping malformed message",
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset, "err", err)
		countMessage(raw.Topic, "", resultMalformed)
		p.commit(ctx, raw)
		return
	}

	for attempt := 1; ; attempt++ {
		err := p.handler.Handle(ctx, msg)
		if err == nil {
			break
		}
		p.logger.ErrorContext(ctx, "handler failed",
			"event_type", msg.EventType, "user_id", msg.UserID, "offset", msg.Offset, "attempt", attempt, "err", err)
		countMessage(msg.Topic, msg.EventType, resultHandlerError)
		if !sleep(ctx, p.retryDelay) {
			return
		}
	}
	if p.commit(ctx, raw) {
		markHandled(msg)
	}
}

func (p *Processor) commit(ctx context.Context, raw kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, raw); err != nil {
		p.logger.ErrorContext(ctx, "commit failed", "topic", raw.Topic, "offset", raw.Offset, "err", err)
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// decodeMessage accepts both Confluent-framed values and bare JSON. Bare JSON yields
// schema id 0.
func decodeMessage(raw kafka.Message) (Message, error) {
	if len(raw.Value) == 0 {
		return Message{}, errors.New("empty payload")
	}
	headers := make(map[string]string, len(raw.Headers))
	for _, h := range raw.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers[events.HeaderEventType]
	if eventType == "" {
		return Message{}, errors.New("missing event_type header")
	}

	body, schemaID := raw.Value, 0
	if body[0] == 0 {
		if len(body) < 5 {
			return Message{}, fmt.Errorf("framed payload too short: %d bytes", len(body))
		}
		schemaID = int(binary.BigEndian.Uint32(body[1:5]))
		body = body[5:]
	}
	if !json.Valid(body) {
		return Message{}, errors.New("payload is not valid JSON")
	}

	return Message{
		Topic:         raw.Topic,
		Partition:     raw.Partition,
		Offset:        raw.Offset,
		Timestamp:     raw.Time,
		EventType:     eventType,
		UserID:        headers[events.HeaderUserID],
		SchemaSubject: headers[events.HeaderSchemaSubject],
		SchemaID:      schemaID,
		Payload:       json.RawMessage(append([]byte(nil), body...)),
	}, nil
}
