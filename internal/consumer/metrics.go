package consumer

import "github.com/prometheus/client_golang/prometheus"

const (
	resultHandled      = "handled"
	resultHandlerError = "handler_error"
	resultMalformed    = "malformed"
)

var (
	consumedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salestrack",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Consumed messages by topic, event type and result.",
	}, []string{"topic", "event_type", "result"})

	lastHandled = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "salestrack",
		Subsystem: "consumer",
		Name:      "last_handled_timestamp_seconds",
		Help:      "Broker timestamp of the newest handled message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(consumedMessages, lastHandled)
}

// countMessage records one consumed message. Malformed messages carry no reliable event type.
func countMessage(topic, eventType, result string) {
	if eventType == "" {
		eventType = "unknown"
	}
	consumedMessages.WithLabelValues(topic, eventType, result).Inc()
}

func markHandled(msg Message) {
	countMessage(msg.Topic, msg.EventType, resultHandled)
	if !msg.Timestamp.IsZero() {
		lastHandled.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}
