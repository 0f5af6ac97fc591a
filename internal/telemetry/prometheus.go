package telemetry

import "github.com/prometheus/client_golang/prometheus"

const deskNamespace string = "desk"

var (
	promSessionActive  prometheus.Gauge
	promConnectionLive prometheus.Gauge
	promRouterMessages *prometheus.CounterVec
	promSweeperRuns    *prometheus.CounterVec
	promSweeperExpired prometheus.Counter
)

func init() {
	promSessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: deskNamespace,
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently active.",
	})

	promConnectionLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: deskNamespace,
		Subsystem: "connection",
		Name:      "live",
		Help:      "Live signal connections.",
	})

	promRouterMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: deskNamespace,
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Inbound messages by kind and outcome.",
		},
		[]string{"kind", "result"},
	)

	promSweeperRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: deskNamespace,
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Sweeper runs by outcome.",
		},
		[]string{"result"},
	)

	promSweeperExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: deskNamespace,
		Subsystem: "sweeper",
		Name:      "expired_total",
		Help:      "Sessions torn down for inactivity.",
	})

	prometheus.MustRegister(promSessionActive)
	prometheus.MustRegister(promConnectionLive)
	prometheus.MustRegister(promRouterMessages)
	prometheus.MustRegister(promSweeperRuns)
	prometheus.MustRegister(promSweeperExpired)
}

func SessionStarted() {
	promSessionActive.Inc()
}

func SessionEnded() {
	promSessionActive.Dec()
}

func ConnectionOpened() {
	promConnectionLive.Inc()
}

func ConnectionClosed() {
	promConnectionLive.Dec()
}

// MessageRouted counts one inbound message by kind and outcome
// ("forwarded", "handled", "rejected", "rate_limited").
func MessageRouted(kind, result string) {
	promRouterMessages.WithLabelValues(kind, result).Inc()
}

func SweepCompleted(expired int) {
	promSweeperRuns.WithLabelValues("completed").Inc()
	promSweeperExpired.Add(float64(expired))
}

func SweepSkipped() {
	promSweeperRuns.WithLabelValues("skipped").Inc()
}
