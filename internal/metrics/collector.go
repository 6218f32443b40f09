// Package metrics 定义服务的 Prometheus 指标。
// Collector 的方法允许 nil 接收者，未启用指标时调用方无需判空。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 消息被拒绝的原因标签
const (
	RejectPeerOffline = "peer_offline"
	RejectUnknownUser = "unknown_user"
	RejectRateLimited = "rate_limited"
)

// Collector 持有所有指标和独立的 registry
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	MessagesDelivered prometheus.Counter
	MessagesRejected  *prometheus.CounterVec
	PersistFailures   prometheus.Counter
	FramesDropped     prometheus.Counter

	SweepRuns      prometheus.Counter
	SweepDemotions prometheus.Counter
	SweepFailures  prometheus.Counter

	ActiveRooms       prometheus.Gauge
	ActiveConnections prometheus.Gauge
	BreakerState      *prometheus.GaugeVec
}

// NewCollector 创建并注册所有指标
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages accepted and fanned out to a room",
		}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Messages not delivered, by reason",
		}, []string{"reason"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_persist_failures_total",
			Help:      "Messages delivered live but not persisted",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_frames_dropped_total",
			Help:      "Outbound frames dropped because a connection queue was full",
		}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_sweep_runs_total",
			Help:      "Completed presence sweeps",
		}),
		SweepDemotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_sweep_demotions_total",
			Help:      "Users demoted to offline by the sweeper",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_sweep_failures_total",
			Help:      "Per-user demotion failures during sweeps",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms with at least one joined connection",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open websocket connections",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
	}
	c.registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.MessagesDelivered, c.MessagesRejected, c.PersistFailures, c.FramesDropped,
		c.SweepRuns, c.SweepDemotions, c.SweepFailures,
		c.ActiveRooms, c.ActiveConnections, c.BreakerState,
	)
	return c
}

// Registry 返回内部 registry，测试时使用
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler 返回 /metrics 的 HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) MessageDelivered() {
	if c == nil {
		return
	}
	c.MessagesDelivered.Inc()
}

func (c *Collector) MessageRejected(reason string) {
	if c == nil {
		return
	}
	c.MessagesRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) PersistFailed() {
	if c == nil {
		return
	}
	c.PersistFailures.Inc()
}

func (c *Collector) FrameDropped() {
	if c == nil {
		return
	}
	c.FramesDropped.Inc()
}

// SweepFinished 记录一次清扫的结果
func (c *Collector) SweepFinished(demoted, failed int) {
	if c == nil {
		return
	}
	c.SweepRuns.Inc()
	c.SweepDemotions.Add(float64(demoted))
	c.SweepFailures.Add(float64(failed))
}

func (c *Collector) SetActiveRooms(n int) {
	if c == nil {
		return
	}
	c.ActiveRooms.Set(float64(n))
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.ActiveConnections.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.ActiveConnections.Dec()
}

// SetBreakerState 记录熔断器状态，state 取值与 gobreaker.State 一致
func (c *Collector) SetBreakerState(name string, state int) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(name).Set(float64(state))
}
