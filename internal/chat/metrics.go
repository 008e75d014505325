package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of messages accepted for durability",
		},
		[]string{"type"},
	)

	messagesRecalledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_recalled_total",
			Help: "Total number of recalled messages",
		},
	)

	conversationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_conversations_created_total",
			Help: "Total number of conversations created",
		},
		[]string{"type"},
	)

	blockEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_block_events_total",
			Help: "Contact block/unblock events processed by the boundary listener",
		},
		[]string{"event"},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_send_duration_seconds",
			Help:    "End-to-end latency of the send path",
			Buckets: prometheus.DefBuckets,
		},
	)

	unreadCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_unread_cache_lookups_total",
			Help: "Unread-count cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)

func recordSend(msgType MessageType, start time.Time) {
	messagesSentTotal.WithLabelValues(string(msgType)).Inc()
	sendDuration.Observe(time.Since(start).Seconds())
}

func recordConversationCreated(convType ConversationType) {
	conversationsCreatedTotal.WithLabelValues(string(convType)).Inc()
}

func recordBlockEvent(event string) {
	blockEventsTotal.WithLabelValues(event).Inc()
}
