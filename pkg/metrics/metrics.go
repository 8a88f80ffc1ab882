package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics tracks property and replication activity
type Metrics struct {
	// Interactive PROP
	PropsSet     *prometheus.CounterVec
	PropsDeleted *prometheus.CounterVec
	PropDenials  prometheus.Counter
	PropTooMany  prometheus.Counter
	PropNotFound prometheus.Counter

	// Replicated TPROP
	TPropApplied  *prometheus.CounterVec
	TPropStale    prometheus.Counter
	TPropDropped  prometheus.Counter
	EpochsLowered *prometheus.CounterVec
	BurstLines    prometheus.Counter

	// State
	Accounts      prometheus.Gauge
	Links         prometheus.Gauge
	Clients       prometheus.Gauge
	SnapshotSaves prometheus.Counter
	SnapshotFails prometheus.Counter
}

// New creates and registers the metrics on registry, or on the default
// registerer when registry is nil.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		PropsSet: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircxprop_props_set_total",
			Help: "Properties set through PROP, by entity kind",
		}, []string{"kind"}),
		PropsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircxprop_props_deleted_total",
			Help: "Properties deleted through PROP, by entity kind",
		}, []string{"kind"}),
		PropDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircxprop_prop_denied_total",
			Help: "PROP writes rejected by authorization",
		}),
		PropTooMany: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircxprop_prop_toomany_total",
			Help: "PROP writes rejected because the entity is full",
		}),
		PropNotFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircxprop_prop_target_missing_total",
			Help: "PROP requests naming an unknown target",
		}),
		TPropApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircxprop_tprop_applied_total",
			Help: "Replicated property changes applied, by entity kind",
		}, []string{"kind"}),
		TPropStale: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircxprop_tprop_stale_total",
			Help: "Replicated property changes dropped as stale",
		}),
		TPropDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircxprop_tprop_dropped_total",
			Help: "Replicated property changes dropped as malformed or unresolvable",
		}),
		EpochsLowered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircxprop_epochs_lowered_total",
			Help: "Entities whose creation timestamp was lowered by replication",
		}, []string{"kind"}),
		BurstLines: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircxprop_burst_lines_total",
			Help: "TPROP lines sent during link bursts",
		}),
		Accounts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircxprop_accounts",
			Help: "Number of known accounts",
		}),
		Links: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircxprop_links",
			Help: "Number of established server links",
		}),
		Clients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircxprop_local_clients",
			Help: "Number of connected local clients",
		}),
		SnapshotSaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircxprop_snapshot_saves_total",
			Help: "Account snapshots written to the database",
		}),
		SnapshotFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircxprop_snapshot_failures_total",
			Help: "Account snapshots that failed to write",
		}),
	}
}

// NewNop returns metrics bound to a private registry, for callers that do
// not export them.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the metrics in gatherer, or the default gatherer when nil.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// StartServer serves /metrics and /health/live on addr in the background.
func StartServer(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) *http.Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("Starting metrics server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return server
}
