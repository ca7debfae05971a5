package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubfleet/hubfleet/pkg/metrics"
	"github.com/hubfleet/hubfleet/pkg/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := NewClient(Config{Host: "tcp://" + u.Host})
	require.NoError(t, err)
	return client
}

func TestInspectService(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1.41/services/jupyter-alice", r.URL.Path)
		json.NewEncoder(w).Encode(types.Service{ID: "svc123"})
	}))

	svc, err := client.InspectService(context.Background(), "jupyter-alice")
	require.NoError(t, err)
	assert.Equal(t, "svc123", svc.ID)
}

func TestInspectServiceNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "service jupyter-alice not found"})
	}))

	_, err := client.InspectService(context.Background(), "jupyter-alice")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNodeUnhealthy(err))
	assert.Contains(t, err.Error(), "service jupyter-alice not found")
}

func TestInspectServiceNodeUnhealthy(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "node is down"})
	}))

	_, err := client.InspectService(context.Background(), "jupyter-alice")
	require.Error(t, err)
	assert.True(t, IsNodeUnhealthy(err))
	assert.False(t, IsNotFound(err))
}

func TestErrorWithoutJSONBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream blew up"))
	}))

	err := client.Ping(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream blew up", apiErr.Message)
}

func TestCreateService(t *testing.T) {
	var got types.ServiceSpec
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1.41/services/create", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"ID": "new-id", "Warnings": []string{"image pinned by digest"}})
	}))

	id, err := client.CreateService(context.Background(), types.ServiceSpec{Name: "jupyter-bob"})
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)
	assert.Equal(t, "jupyter-bob", got.Name)
}

func TestRemoveService(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1.41/services/svc123", r.URL.Path)
	}))

	require.NoError(t, client.RemoveService(context.Background(), "svc123"))
}

func TestListTasksFilter(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.41/tasks", r.URL.Path)
		var filter map[string][]string
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("filters")), &filter))
		assert.Equal(t, []string{"jupyter-alice"}, filter["service"])
		assert.Equal(t, []string{"running"}, filter["desired-state"])
		json.NewEncoder(w).Encode([]types.Task{{ID: "t1", ServiceID: "svc123"}})
	}))

	tasks, err := client.ListTasks(context.Background(), "jupyter-alice", types.TaskStateRunning)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)
}

// TestCallMetricsUseBoundedOperationLabels tests that the per-call counter is
// labeled by logical operation, never by the raw request path: service names
// and ids in the path would grow label cardinality per user
func TestCallMetricsUseBoundedOperationLabels(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.Service{ID: "svc123"})
	}))

	before := testutil.ToFloat64(metrics.EngineCallsTotal.WithLabelValues("inspect", "200"))
	_, err := client.InspectService(context.Background(), "jupyter-alice")
	require.NoError(t, err)

	after := testutil.ToFloat64(metrics.EngineCallsTotal.WithLabelValues("inspect", "200"))
	assert.Equal(t, before+1, after)
	assert.Zero(t, testutil.ToFloat64(metrics.EngineCallsTotal.WithLabelValues("GET /services/jupyter-alice", "200")))
}

func TestNewClientRejectsUnknownScheme(t *testing.T) {
	_, err := NewClient(Config{Host: "ssh://somewhere"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported"))
}

func TestFromEnvDefault(t *testing.T) {
	t.Setenv("DOCKER_HOST", "")
	t.Setenv("DOCKER_TLS_VERIFY", "")
	t.Setenv("DOCKER_CERT_PATH", "")
	cfg := FromEnv()
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Nil(t, cfg.TLS)
}

func TestFromEnvTLS(t *testing.T) {
	t.Setenv("DOCKER_HOST", "tcp://swarm.internal:2376")
	t.Setenv("DOCKER_TLS_VERIFY", "1")
	t.Setenv("DOCKER_CERT_PATH", "/certs")
	cfg := FromEnv()
	assert.Equal(t, "tcp://swarm.internal:2376", cfg.Host)
	require.NotNil(t, cfg.TLS)
	assert.Equal(t, "/certs/ca.pem", cfg.TLS.CAFile)
	assert.True(t, cfg.TLS.Verify)
}
