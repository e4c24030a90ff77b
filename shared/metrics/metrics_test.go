package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ExposesRegistry(t *testing.T) {
	m := NewServer("127.0.0.1:0", "")
	assert.Equal(t, defaultEndpoint, m.Endpoint)

	counter := promauto.With(m.Registry).NewCounter(prometheus.CounterOpts{
		Name: "test_events_total",
		Help: "test counter",
	})
	counter.Add(3)

	srv := httptest.NewServer(m.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + defaultEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "test_events_total 3")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_CustomEndpoint(t *testing.T) {
	m := NewServer("127.0.0.1:0", "/custom")

	srv := httptest.NewServer(m.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/custom")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
