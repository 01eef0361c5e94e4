// Package transport implements lansync's external HTTPS interfaces (spec.md
// section 6): the chunk/market/node endpoints every peer serves and
// consumes, over TLS HTTPS via github.com/julienschmidt/httprouter
// on the server side and net/http on the client side. Grounded on the
// original's lansync/client.py Client/ClientPool (the connection shape) and
// lansync/server.py (the route surface), adapted from the donor's
// internal/quicutil TLS helpers since this spec replaces QUIC+gRPC with
// plain HTTPS.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client is one peer connection handle, implementing clientpool.Client so
// it can be managed by the bounded per-peer pool (component E).
type Client struct {
	deviceID   string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client dialing deviceID at address:port over HTTPS.
// tlsConfig is the shared client TLS configuration (see quicutil); readTimeout
// bounds every round trip, connectTimeout the initial handshake.
func NewClient(deviceID, address string, port int, tlsConfig *tls.Config, connectTimeout, readTimeout time.Duration) *Client {
	transport := &http.Transport{
		TLSClientConfig: tlsConfig,
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
	}
	return &Client{
		deviceID: deviceID,
		baseURL:  fmt.Sprintf("https://%s:%d", address, port),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   readTimeout,
		},
	}
}

// Close releases the underlying connection pool's idle connections. Unlike
// a stateful protocol handle, an HTTP client has nothing else to tear down;
// this satisfies clientpool.Client's Close contract for the pool's Remove
// path.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// FetchChunk performs GET /chunk/{namespace}/{hash} and returns the raw
// chunk bytes, or an error wrapping a 404 as ErrNotFound.
func (c *Client) FetchChunk(ctx context.Context, namespace, hash string) ([]byte, error) {
	url := fmt.Sprintf("%s/chunk/%s/%s", c.baseURL, namespace, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: build chunk request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: fetch chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: fetch chunk: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read chunk body: %w", err)
	}
	return data, nil
}

// ExchangeMarket performs POST /market/{namespace}/{key} with our serialized
// Market record, returning the peer's merged record.
func (c *Client) ExchangeMarket(ctx context.Context, namespace, key string, record []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/market/%s/%s", c.baseURL, namespace, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(record))
	if err != nil {
		return nil, fmt.Errorf("transport: build market request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: exchange market: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: exchange market: unexpected status %d", resp.StatusCode)
	}
	merged, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read merged market: %w", err)
	}
	return merged, nil
}

// AnnounceNode performs POST /node/{namespace} with a JSON RemoteNode body.
func (c *Client) AnnounceNode(ctx context.Context, namespace string, body []byte) error {
	url := fmt.Sprintf("%s/node/%s", c.baseURL, namespace)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: build node request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: announce node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("transport: announce node: unexpected status %d", resp.StatusCode)
	}
	return nil
}
