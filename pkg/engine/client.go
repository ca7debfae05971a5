package engine

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hubfleet/hubfleet/pkg/log"
	"github.com/hubfleet/hubfleet/pkg/metrics"
	"github.com/hubfleet/hubfleet/pkg/types"
)

const (
	// DefaultHost is used when DOCKER_HOST is not set.
	DefaultHost = "unix:///var/run/docker.sock"

	apiVersion = "v1.41"
)

// APIError is a non-2xx response from the engine, carrying the HTTP-style
// status code the discovery state machine keys on.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine: %s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is an engine 404: the resource was removed
// and the caller must not assume continuity.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsNodeUnhealthy reports whether err is an engine 500, which service
// inspect returns when the node holding the service is unhealthy. Treated
// like not-found for identity purposes since continuity cannot be proven.
func IsNodeUnhealthy(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusInternalServerError
}

// TLSConfig points at the transport security material for a tcp engine
// endpoint.
type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Verify   bool   `yaml:"verify"`
}

// Config holds engine connection settings.
type Config struct {
	Host string     `yaml:"host"`
	TLS  *TLSConfig `yaml:"tls"`
}

// FromEnv builds a Config from the ambient environment (DOCKER_HOST,
// DOCKER_TLS_VERIFY, DOCKER_CERT_PATH), falling back to the default local
// socket. Explicit configuration overlays it field by field.
func FromEnv() Config {
	cfg := Config{Host: DefaultHost}
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		cfg.Host = host
	}
	certPath := os.Getenv("DOCKER_CERT_PATH")
	verify := os.Getenv("DOCKER_TLS_VERIFY") != ""
	if certPath != "" || verify {
		if certPath == "" {
			home, _ := os.UserHomeDir()
			certPath = filepath.Join(home, ".docker")
		}
		cfg.TLS = &TLSConfig{
			CAFile:   filepath.Join(certPath, "ca.pem"),
			CertFile: filepath.Join(certPath, "cert.pem"),
			KeyFile:  filepath.Join(certPath, "key.pem"),
			Verify:   verify,
		}
	}
	return cfg
}

// Client is a minimal HTTP client for the engine's service and task API.
type Client struct {
	base string
	http *http.Client
}

// NewClient constructs a client for the configured endpoint. Supported host
// schemes are unix:// and tcp://.
func NewClient(cfg Config) (*Client, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid engine host %q: %w", host, err)
	}

	transport := &http.Transport{}
	base := ""
	switch u.Scheme {
	case "unix":
		socket := u.Path
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
		// Host is a placeholder; the dialer ignores it.
		base = "http://engine"
	case "tcp":
		scheme := "http"
		if cfg.TLS != nil {
			tlsConf, err := loadTLS(cfg.TLS)
			if err != nil {
				return nil, err
			}
			transport.TLSClientConfig = tlsConf
			scheme = "https"
		}
		base = scheme + "://" + u.Host
	default:
		return nil, fmt.Errorf("unsupported engine host scheme %q", u.Scheme)
	}

	return &Client{
		base: base + "/" + apiVersion,
		http: &http.Client{Transport: transport},
	}, nil
}

func loadTLS(cfg *TLSConfig) (*tls.Config, error) {
	tlsConf := &tls.Config{InsecureSkipVerify: !cfg.Verify}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading engine CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %s", cfg.CAFile)
		}
		tlsConf.RootCAs = pool
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading engine client certificate: %w", err)
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}
	return tlsConf, nil
}

// do issues one engine request. op is the bounded logical operation name used
// as a metric label; the raw path embeds per-user service names and must not
// leak into label values.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.EngineCallsTotal.WithLabelValues(op, "transport").Inc()
		return fmt.Errorf("engine request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.EngineCallsTotal.WithLabelValues(op, fmt.Sprint(resp.StatusCode)).Inc()
	metrics.EngineCallDuration.Observe(time.Since(started).Seconds())

	if resp.StatusCode >= 400 {
		msg := struct {
			Message string `json:"message"`
		}{}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(data, &msg); err != nil || msg.Message == "" {
			msg.Message = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg.Message}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding engine response for %s %s: %w", method, path, err)
		}
	}
	return nil
}

// InspectService fetches a service by name or id.
func (c *Client) InspectService(ctx context.Context, ref string) (*types.Service, error) {
	var svc types.Service
	if err := c.do(ctx, "inspect", http.MethodGet, "/services/"+url.PathEscape(ref), nil, nil, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

// CreateService submits a service specification and returns the new id.
func (c *Client) CreateService(ctx context.Context, spec types.ServiceSpec) (string, error) {
	var resp struct {
		ID       string   `json:"ID"`
		Warnings []string `json:"Warnings"`
	}
	if err := c.do(ctx, "create", http.MethodPost, "/services/create", nil, spec, &resp); err != nil {
		return "", err
	}
	for _, w := range resp.Warnings {
		logger := log.WithComponent("engine")
		logger.Warn().Str("service", spec.Name).Msg(w)
	}
	return resp.ID, nil
}

// RemoveService deletes a service by id.
func (c *Client) RemoveService(ctx context.Context, id string) error {
	return c.do(ctx, "remove", http.MethodDelete, "/services/"+url.PathEscape(id), nil, nil, nil)
}

// ListTasks returns the tasks for a service filtered by desired state.
func (c *Client) ListTasks(ctx context.Context, service string, desired types.TaskState) ([]types.Task, error) {
	filter := map[string][]string{
		"service":       {service},
		"desired-state": {string(desired)},
	}
	encoded, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}
	query := url.Values{"filters": {string(encoded)}}
	var tasks []types.Task
	if err := c.do(ctx, "tasks", http.MethodGet, "/tasks", query, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Ping probes engine connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/_ping", nil, nil, nil)
}
