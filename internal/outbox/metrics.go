package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes and DLQ manager actions used as label values.
const (
	outcomeDelivered    = "delivered"
	outcomeDeadLettered = "dead_lettered"

	actionRequeued    = "requeued"
	actionRescheduled = "rescheduled"
	actionQuarantined = "quarantined"
)

var (
	publishedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salestrack",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events handled by the dispatcher, by topic and outcome.",
	}, []string{"topic", "outcome"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "salestrack",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, publishing and marking one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salestrack",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled by the manager, by topic, event type and action.",
	}, []string{"topic", "event_type", "action"})

	dlqBacklog = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "salestrack",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "DLQ entries currently stored, split into pending and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(publishedEvents, batchDuration, dlqActions, dlqBacklog)
}

func countPublished(messages []Message, outcome string) {
	for _, msg := range messages {
		publishedEvents.WithLabelValues(msg.Topic, outcome).Inc()
	}
}

func countDLQ(entry dlqEntry, action string) {
	dlqActions.WithLabelValues(entry.Topic, entry.EventType, action).Inc()
}

func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) error {
	var pending, quarantined int64
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
                COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
           FROM outbox_dlq`,
	).Scan(&pending, &quarantined)
	if err != nil {
		return err
	}
	dlqBacklog.WithLabelValues("pending").Set(float64(pending))
	dlqBacklog.WithLabelValues("quarantined").Set(float64(quarantined))
	return nil
}
