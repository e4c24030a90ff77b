package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const defaultEndpoint = "/metrics"

// Metrics holds the metrics registry and exposes it over HTTP
type Metrics struct {
	Registry *prometheus.Registry
	Endpoint string

	*http.Server
}

// NewServer initializes and returns a new Metrics instance listening on addr
func NewServer(addr string, endpoint string) *Metrics {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := http.NewServeMux()
	router.Handle(endpoint, promhttp.HandlerFor(
		reg,
		promhttp.HandlerOpts{EnableOpenMetrics: true}))

	return &Metrics{
		Registry: reg,
		Endpoint: endpoint,
		Server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
	}
}

// Start serves the metrics endpoint in the background
func (m *Metrics) Start() {
	go func() {
		log.Infof("serving metrics on %s%s", m.Addr, m.Endpoint)
		if err := m.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
}

// Shutdown stops the metrics server
func (m *Metrics) Shutdown(ctx context.Context) error {
	if err := m.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
