package service

import (
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes a Prometheus registry on /metrics
type MetricsServer struct {
	httpServer
	gatherer prometheus.Gatherer
}

// NewMetricsServer serves gatherer, or the default registry when nil
func NewMetricsServer(logger log.Logger, gatherer prometheus.Gatherer) *MetricsServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &MetricsServer{
		httpServer: httpServer{name: "metrics", log: logger},
		gatherer:   gatherer,
	}
}

// Start listens on addr and serves in the background
func (m *MetricsServer) Start(addr string) error {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return m.start(addr, router)
}
