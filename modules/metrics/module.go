// Package metrics counts relay activity from chat domain events and exposes
// it in the Prometheus text format.
package metrics

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/example/chat-relay/events"
	"github.com/example/chat-relay/modules/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_relay"

// StatsSource reports live hub counters.
type StatsSource interface {
	Stats() chat.Stats
}

// Module is an EventConsumerModule that turns chat events into metrics.
type Module struct {
	registry *prometheus.Registry

	messagesSent       prometheus.Counter
	messageRecipients  prometheus.Histogram
	joins              prometheus.Counter
	leaves             *prometheus.CounterVec
	statsSourceApplied bool
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.EventConsumerModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a metrics module with its own registry.
func NewModule() *Module {
	m := &Module{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted and relayed to a room.",
		}),
		messageRecipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_recipients",
			Help:      "Connections a message was delivered to.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_joins_total",
			Help:      "Room joins.",
		}),
		leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_leaves_total",
			Help:      "Room leaves by cause.",
		}, []string{"cause"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesSent,
		m.messageRecipients,
		m.joins,
		m.leaves,
	)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "metrics"
}

// Start is a no-op; consumers are registered by the framework.
func (m *Module) Start(_ context.Context) error {
	log.Println("[metrics] Module started")
	return nil
}

// Stop is a no-op.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[metrics] Module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"hub_stats": m.statsSourceApplied,
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageSentV1, m.handleMessageSent, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserJoinedV1, m.handleUserJoined, m,
	); err != nil {
		return fmt.Errorf("failed to register UserJoined consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserLeftV1, m.handleUserLeft, m,
	); err != nil {
		return fmt.Errorf("failed to register UserLeft consumer: %w", err)
	}

	log.Println("[metrics] Registered event consumers: MessageSent, UserJoined, UserLeft")
	return nil
}

// SetStatsSource exports live hub counters (called from main.go).
func (m *Module) SetStatsSource(src StatsSource) {
	if m.statsSourceApplied {
		return
	}
	m.statsSourceApplied = true

	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live connections.",
		}, func() float64 { return float64(src.Stats().Clients) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Non-empty rooms.",
		}, func() float64 { return float64(src.Stats().Rooms) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_delivered_total",
			Help:      "Frames enqueued for a connection.",
		}, func() float64 { return float64(src.Stats().Delivered) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames dropped because the connection was gone or backed up.",
		}, func() float64 { return float64(src.Stats().Skipped) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Module) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Event handlers

func (m *Module) handleMessageSent(_ context.Context, event events.MessageSentEvent, _ *mono.Msg) error {
	m.messagesSent.Inc()
	m.messageRecipients.Observe(float64(event.Recipients))
	return nil
}

func (m *Module) handleUserJoined(_ context.Context, _ events.UserJoinedEvent, _ *mono.Msg) error {
	m.joins.Inc()
	return nil
}

func (m *Module) handleUserLeft(_ context.Context, event events.UserLeftEvent, _ *mono.Msg) error {
	cause := "leave"
	if event.Disconnected {
		cause = "disconnect"
	}
	m.leaves.WithLabelValues(cause).Inc()
	return nil
}
