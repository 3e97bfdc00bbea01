//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/salestrack/internal/outbox"
	"example.com/salestrack/pkg/events"
)

func TestKafkaRecordEventReachesEventLog(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkacontainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	const topic = "sales_records"
	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
	_ = conn.Close()

	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "salestrack-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	proc := NewProcessor(reader, NewPersistenceHandler(pool), WithLogger(testLogger(t)))
	go func() { _ = proc.Run(runCtx) }()

	producer := outbox.NewKafkaProducer(brokers)
	defer producer.Close()

	evt := events.RecordChanged{
		RecordID:         11,
		UserID:           "user-kafka",
		InputName:        "alice",
		RecordDate:       "2024-03-15",
		OperationDate:    "2024-03-15",
		CallCount:        40,
		CatchCount:       10,
		AcquisitionCount: 2,
		OccurredAt:       time.Now().UTC(),
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	require.NoError(t, producer.WriteMessages(ctx, topic, kafka.Message{
		Key:   []byte(evt.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(events.TypeRecordCreated)},
			{Key: events.HeaderUserID, Value: []byte(evt.UserID)},
			{Key: events.HeaderSchemaSubject, Value: []byte("sales_records-value")},
		},
	}))

	require.Eventually(t, func() bool {
		var count int
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_event_log WHERE user_id = $1`, evt.UserID).Scan(&count); err != nil {
			return false
		}
		return count == 1
	}, 60*time.Second, 500*time.Millisecond)

	var (
		eventType string
		stored    []byte
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT event_type, payload FROM sales_event_log WHERE user_id = $1`, evt.UserID,
	).Scan(&eventType, &stored))
	require.Equal(t, events.TypeRecordCreated, eventType)
	require.JSONEq(t, string(payload), string(stored))
}
