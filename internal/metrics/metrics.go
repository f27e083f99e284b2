// Package metrics holds the Prometheus collectors of the signaling server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

const namespace = "zchat"

type Metrics struct {
	activeChannels       prometheus.Gauge
	framesTotal          *prometheus.CounterVec
	droppedNotifications *prometheus.CounterVec
	callsTotal           *prometheus.CounterVec
	socialOpsTotal       *prometheus.CounterVec
	messagesTotal        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_channels",
			Help:      "Number of registered session channels",
		}),
		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_frames_total",
				Help:      "Total number of frames received from clients",
			},
			[]string{"type"},
		),
		droppedNotifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_notifications_total",
				Help:      "Notifications not delivered because the recipient was unreachable",
			},
			[]string{"type"},
		),
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total number of finished calls by kind and verdict",
			},
			[]string{"kind", "verdict"},
		),
		socialOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "social_operations_total",
				Help:      "Total number of social graph operations by outcome",
			},
			[]string{"operation", "status"},
		),
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total number of messages appended by kind",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(
		m.activeChannels,
		m.framesTotal,
		m.droppedNotifications,
		m.callsTotal,
		m.socialOpsTotal,
		m.messagesTotal,
	)
	return m
}

func (m *Metrics) ChannelOpened() {
	if m == nil {
		return
	}
	m.activeChannels.Inc()
}

func (m *Metrics) ChannelClosed() {
	if m == nil {
		return
	}
	m.activeChannels.Dec()
}

func (m *Metrics) FrameReceived(eventType string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) NotificationDropped(eventType string) {
	if m == nil {
		return
	}
	m.droppedNotifications.WithLabelValues(eventType).Inc()
}

func (m *Metrics) CallFinished(kind, verdict string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(kind, verdict).Inc()
}

// SocialOp records the outcome of a social graph operation.
func (m *Metrics) SocialOp(operation string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	m.socialOpsTotal.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) MessageAppended(kind string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(kind).Inc()
}
