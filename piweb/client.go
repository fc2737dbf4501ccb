// Package piweb is a client for a PI-style historian's time-series REST
// interface. It resolves human-readable tag names to server-assigned web
// ids, fetches interpolated and recorded values, and posts value updates.
package piweb

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"histlink/logging"
)

// Config holds connection settings for a historian server.
// A Config is consumed once by NewClient; the resulting client is
// immutable and safe for concurrent use.
type Config struct {
	Host     string        `yaml:"host"`               // Host name; https is assumed unless a scheme is given
	Username string        `yaml:"username,omitempty"` // Basic auth user (empty = negotiated auth)
	Password string        `yaml:"password,omitempty"`
	Insecure bool          `yaml:"insecure,omitempty"` // Skip TLS certificate verification
	Timeout  time.Duration `yaml:"timeout,omitempty"`  // Per-request timeout (0 = no timeout)
}

// Client talks to a single historian server. All configuration is fixed at
// construction; concurrent calls share it read-only.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
}

// NewClient creates a historian client from cfg. When cfg.Insecure is set,
// certificate verification is disabled on the transport here, once, rather
// than by mutating process-wide state on every request.
func NewClient(cfg *Config) *Client {
	transport := http.DefaultTransport
	if cfg.Insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		logging.DebugLog("piweb", "TLS verification disabled for %s", cfg.Host)
	}

	base := cfg.Host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	return &Client{
		baseURL:    strings.TrimSuffix(base, "/") + "/piwebapi/",
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		username:   cfg.Username,
		password:   cfg.Password,
	}
}

// BaseURL returns the root URL all requests are issued against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do issues a single request and returns the status code, body, and
// response headers. Every request carries the JSON content type; basic
// credentials are attached when configured, otherwise the transport's
// negotiated scheme is relied on.
func (c *Client) do(ctx context.Context, method, url string, body []byte) (int, []byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, resp.Header, fmt.Errorf("failed to read response: %w", err)
	}

	logging.DebugLog("piweb", "%s %s -> %d (%d bytes)", method, url, resp.StatusCode, len(respBody))
	return resp.StatusCode, respBody, resp.Header, nil
}

func (c *Client) get(ctx context.Context, url string) (int, []byte, error) {
	status, body, _, err := c.do(ctx, http.MethodGet, url, nil)
	return status, body, err
}

// DataServer describes one catalog on the historian.
type DataServer struct {
	WebID       string `json:"WebId"`
	Name        string `json:"Name"`
	Path        string `json:"Path,omitempty"`
	IsConnected bool   `json:"IsConnected,omitempty"`
}

type homeResponse struct {
	Links struct {
		DataServers string `json:"DataServers"`
	} `json:"Links"`
}

type dataServersResponse struct {
	Items []DataServer `json:"Items"`
}

// DataServers lists every data server on the historian by following the
// DataServers link from the API root.
func (c *Client) DataServers(ctx context.Context) ([]DataServer, error) {
	status, body, err := c.get(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ConnectionError{Endpoint: c.baseURL, StatusCode: status}
	}

	var home homeResponse
	if err := json.Unmarshal(body, &home); err != nil {
		return nil, fmt.Errorf("failed to parse root response: %w", err)
	}

	status, body, err = c.get(ctx, home.Links.DataServers)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ConnectionError{Endpoint: home.Links.DataServers, StatusCode: status}
	}

	var list dataServersResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse data server list: %w", err)
	}
	return list.Items, nil
}

// DataServer fetches a single data server by name.
func (c *Client) DataServer(ctx context.Context, name string) (*DataServer, error) {
	url := c.baseURL + "dataservers?name=" + queryEscape(name)
	status, body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ConnectionError{Endpoint: url, StatusCode: status}
	}

	var ds DataServer
	if err := json.Unmarshal(body, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse data server: %w", err)
	}
	return &ds, nil
}

// queryEscape escapes a query parameter value. Asterisks are preserved so
// wildcard name filters reach the historian unencoded, matching what its
// search endpoints document.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "%2A", "*")
}
