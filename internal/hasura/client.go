// Package hasura talks to the metadata API of a GraphQL engine. Only two
// calls are used: export the whole metadata document and replace it.
package hasura

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

const (
	DefaultEndpoint    = "http://localhost:8080/v1/metadata"
	DefaultAdminSecret = "myadminsecretkey"
	DefaultTimeout     = 30 * time.Second

	adminSecretHeader = "X-Hasura-Admin-Secret"
	maxResponseBytes  = 64 << 20

	OpExport  = "export_metadata"
	OpReplace = "replace_metadata"
)

// Config selects the metadata endpoint and the credential sent with every
// call.
type Config struct {
	Endpoint    string
	AdminSecret string
	Timeout     time.Duration
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		Endpoint:    DefaultEndpoint,
		AdminSecret: DefaultAdminSecret,
		Timeout:     DefaultTimeout,
	}
}

// withDefaults fills empty fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.AdminSecret == "" {
		c.AdminSecret = d.AdminSecret
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Observer is notified after every metadata call. status is 0 when no
// response was received.
type Observer interface {
	ObserveCall(op string, status int, elapsed time.Duration, err error)
}

// Client calls the metadata API. It is safe for concurrent use.
type Client struct {
	cfg      Config
	http     *http.Client
	observer Observer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithObserver registers an Observer for metadata calls.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a Client for cfg. Empty fields fall back to the defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the metadata URL this client posts to.
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// request is the metadata API envelope.
type request struct {
	Type string `json:"type"`
	Args any    `json:"args"`
}

// ExportMetadata returns the raw exported metadata document.
func (c *Client) ExportMetadata(ctx context.Context) ([]byte, error) {
	return c.call(ctx, OpExport, struct{}{})
}

// FetchDocument exports the metadata and normalizes it into a Document.
func (c *Client) FetchDocument(ctx context.Context) (*metadata.Document, error) {
	body, err := c.ExportMetadata(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := metadata.Normalize(body)
	if err != nil {
		return nil, fmt.Errorf("normalize metadata: %w", err)
	}
	return doc, nil
}

// ReplaceMetadata sends doc as the new authoritative metadata. The server
// applies it as a whole or not at all.
func (c *Client) ReplaceMetadata(ctx context.Context, doc *metadata.Document) error {
	if doc == nil {
		return fmt.Errorf("replace metadata: no document")
	}
	_, err := c.call(ctx, OpReplace, doc)
	return err
}

func (c *Client) call(ctx context.Context, op string, args any) (body []byte, err error) {
	start := time.Now()
	status := 0
	if c.observer != nil {
		defer func() {
			c.observer.ObserveCall(op, status, time.Since(start), err)
		}()
	}

	payload, err := json.Marshal(request{Type: op, Args: args})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(adminSecretHeader, c.cfg.AdminSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
