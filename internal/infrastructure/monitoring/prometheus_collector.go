package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pairview/internal/core/domain"
)

type PrometheusCollector struct {
	roomsActive       prometheus.Gauge
	socketsConnected  prometheus.Gauge
	joinsTotal        prometheus.Counter
	joinRejections    *prometheus.CounterVec
	messagesRelayed   *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	sessionDuration   prometheus.Histogram
	roomFillToConnect prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pairview_rooms_active",
			Help: "Number of rooms with at least one member",
		}),

		socketsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pairview_sockets_connected",
			Help: "Number of open signaling sockets",
		}),

		joinsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pairview_joins_total",
			Help: "Total successful room joins",
		}),

		joinRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairview_join_rejections_total",
			Help: "Room joins rejected, by reason",
		}, []string{"reason"}),

		messagesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairview_signal_messages_relayed_total",
			Help: "Signaling messages forwarded between room members, by type",
		}, []string{"type"}),

		messagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairview_signal_messages_dropped_total",
			Help: "Signaling messages discarded at the relay boundary, by reason",
		}, []string{"reason"}),

		transitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairview_lifecycle_transitions_total",
			Help: "Applied session lifecycle transitions, by target status",
		}, []string{"to"}),

		sessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pairview_session_duration_seconds",
			Help:    "Wall-clock duration of completed sessions",
			Buckets: prometheus.ExponentialBuckets(60, 2, 8),
		}),

		roomFillToConnect: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pairview_room_fill_to_teardown_seconds",
			Help:    "Time a room spends with both members present",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (p *PrometheusCollector) SetRoomsActive(n int) {
	p.roomsActive.Set(float64(n))
}

func (p *PrometheusCollector) SocketConnected() {
	p.socketsConnected.Inc()
}

func (p *PrometheusCollector) SocketDisconnected() {
	p.socketsConnected.Dec()
}

func (p *PrometheusCollector) RecordJoin() {
	p.joinsTotal.Inc()
}

func (p *PrometheusCollector) RecordJoinRejection(reason string) {
	p.joinRejections.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordRelayed(t domain.EventType) {
	p.messagesRelayed.WithLabelValues(string(t)).Inc()
}

func (p *PrometheusCollector) RecordDropped(reason string) {
	p.messagesDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordTransition(to domain.LifecycleStatus) {
	p.transitionsTotal.WithLabelValues(string(to)).Inc()
}

func (p *PrometheusCollector) RecordSessionDuration(d time.Duration) {
	p.sessionDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordRoomOccupancy(d time.Duration) {
	p.roomFillToConnect.Observe(d.Seconds())
}
