// Package metrics holds the Prometheus collectors for the approval service.
// A nil *Metrics is valid and records nothing, which keeps tests and
// optional wiring simple.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "approval"

type Metrics struct {
	SessionsCreated    prometheus.Counter
	ProposalsSubmitted prometheus.Counter
	ProposalsRefused   *prometheus.CounterVec
	Decisions          *prometheus.CounterVec
	ActiveSubscribers  prometheus.Gauge
	SubscribersDropped prometheus.Counter
	FeedPublishErrors  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created since start.",
		}),
		ProposalsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_submitted_total",
			Help:      "Proposals admitted as pending.",
		}),
		ProposalsRefused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_refused_total",
			Help:      "Proposal submissions refused, by reason.",
		}, []string{"reason"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions applied, by outcome.",
		}, []string{"decision"}),
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscribers",
			Help:      "Open session streams.",
		}),
		SubscribersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_dropped_total",
			Help:      "Subscribers dropped because their buffer was full.",
		}),
		FeedPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_publish_errors_total",
			Help:      "Events that could not be published to the activity feed.",
		}),
	}

	reg.MustRegister(
		m.SessionsCreated,
		m.ProposalsSubmitted,
		m.ProposalsRefused,
		m.Decisions,
		m.ActiveSubscribers,
		m.SubscribersDropped,
		m.FeedPublishErrors,
	)
	return m
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.SessionsCreated.Inc()
	}
}

func (m *Metrics) ProposalSubmitted() {
	if m != nil {
		m.ProposalsSubmitted.Inc()
	}
}

func (m *Metrics) ProposalRefused(reason string) {
	if m != nil {
		m.ProposalsRefused.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Decided(approved bool) {
	if m == nil {
		return
	}
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	m.Decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m != nil {
		m.ActiveSubscribers.Inc()
	}
}

func (m *Metrics) SubscriberRemoved() {
	if m != nil {
		m.ActiveSubscribers.Dec()
	}
}

func (m *Metrics) SubscriberDropped() {
	if m != nil {
		m.SubscribersDropped.Inc()
	}
}

func (m *Metrics) FeedPublishFailed() {
	if m != nil {
		m.FeedPublishErrors.Inc()
	}
}
