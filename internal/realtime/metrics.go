package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the router's live state and event throughput
type Metrics struct {
	events        *prometheus.CounterVec
	eventErrors   *prometheus.CounterVec
	messagesSent  prometheus.Counter
	presenceFlips *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. Gauges read straight from the
// registry and rooms on scrape.
func NewMetrics(reg prometheus.Registerer, registry *Registry, rooms *Rooms) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepmatch_ws_events_total",
				Help: "Inbound WebSocket events dispatched, by type.",
			},
			[]string{"event"},
		),
		eventErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepmatch_ws_event_errors_total",
				Help: "Inbound WebSocket events that failed, by type and error code.",
			},
			[]string{"event", "code"},
		),
		messagesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deepmatch_messages_sent_total",
				Help: "Messages appended to the log.",
			},
		),
		presenceFlips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepmatch_presence_transitions_total",
				Help: "Users going online or offline.",
			},
			[]string{"state"},
		),
	}

	sessions := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "deepmatch_ws_sessions",
			Help: "Live WebSocket sessions.",
		},
		func() float64 { return float64(registry.SessionCount()) },
	)
	online := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "deepmatch_online_users",
			Help: "Users with at least one live session.",
		},
		func() float64 { return float64(registry.UserCount()) },
	)
	roomCount := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "deepmatch_rooms",
			Help: "Rooms with at least one member.",
		},
		func() float64 { return float64(rooms.RoomCount()) },
	)

	if reg != nil {
		reg.MustRegister(m.events, m.eventErrors, m.messagesSent, m.presenceFlips, sessions, online, roomCount)
	}
	return m
}

func (m *Metrics) observeEvent(name string) {
	if m != nil {
		m.events.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) observeError(name, code string) {
	if m != nil {
		m.eventErrors.WithLabelValues(name, code).Inc()
	}
}

func (m *Metrics) observeMessage() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) observePresence(online bool) {
	if m == nil {
		return
	}
	if online {
		m.presenceFlips.WithLabelValues("online").Inc()
	} else {
		m.presenceFlips.WithLabelValues("offline").Inc()
	}
}
