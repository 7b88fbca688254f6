package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lumichat/rendezvous/errors"
	"github.com/lumichat/rendezvous/log"
)

const defaultPollInterval = time.Second

// ContentType is the media type of every relay payload. The payloads are
// base64 frames wrapped in JSON by the secure layer, but the relay treats
// them as opaque.
const ContentType = "application/json"

// HTTPChannel implements Channel over a plain HTTP relay. Concurrency
// control uses the relay's ETags: Send carries If-Match with the last seen
// tag, Receive long-polls with If-None-Match until the tag moves.
type HTTPChannel struct {
	client   *http.Client
	relayURL string
	interval time.Duration
	logger   log.Logger

	mu     sync.Mutex
	uri    string
	etag   string
	closed bool
}

// HTTPChannelOptions configures an HTTPChannel.
type HTTPChannelOptions struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// PollInterval is the wait between long-poll rounds. Defaults to 1s.
	PollInterval time.Duration
	Logger       log.Logger
}

// NewHTTPChannel builds a channel client against the given relay base URL.
func NewHTTPChannel(relayURL string, opts HTTPChannelOptions) *HTTPChannel {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &HTTPChannel{
		client:   client,
		relayURL: relayURL,
		interval: interval,
		logger:   logger,
	}
}

// Create implements Channel.Create.
func (c *HTTPChannel) Create(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to build create request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.NewHTTPError(resp.StatusCode, string(body))
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.NewUnknown("relay did not return a channel location")
	}
	uri, err := resolveLocation(c.relayURL, location)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.uri = uri
	c.etag = resp.Header.Get("ETag")
	c.mu.Unlock()

	c.logger.Debug(ctx, "rendezvous channel created", map[string]interface{}{"uri": uri})
	return uri, nil
}

// URI implements Channel.URI.
func (c *HTTPChannel) URI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uri
}

// Send implements Channel.Send. The ETag advances on success, so a following
// Receive will not echo our own payload back.
func (c *HTTPChannel) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	uri, etag := c.uri, c.etag
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uri, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		c.mu.Lock()
		c.etag = resp.Header.Get("ETag")
		c.mu.Unlock()
		return nil
	case http.StatusNotFound, http.StatusGone:
		return errors.NewExpired("rendezvous channel no longer exists")
	case http.StatusPreconditionFailed:
		return errors.NewDataMismatch("channel was updated concurrently")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.NewHTTPError(resp.StatusCode, string(body))
	}
}

// Receive implements Channel.Receive.
func (c *HTTPChannel) Receive(ctx context.Context) ([]byte, error) {
	for {
		payload, changed, err := c.poll(ctx)
		if err != nil {
			return nil, err
		}
		if changed {
			return payload, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.interval):
		}
	}
}

func (c *HTTPChannel) poll(ctx context.Context) ([]byte, bool, error) {
	c.mu.Lock()
	uri, etag := c.uri, c.etag
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, http.NoBody)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build poll request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read payload: %w", err)
		}
		// An unchanged body with a fresh tag can only be our own write racing
		// the poll; the relay guarantees tag-per-write, so trust the tag.
		c.mu.Lock()
		c.etag = resp.Header.Get("ETag")
		c.mu.Unlock()
		if len(payload) == 0 {
			return nil, false, nil
		}
		return payload, true, nil
	case http.StatusNotModified:
		return nil, false, nil
	case http.StatusNotFound, http.StatusGone:
		return nil, false, errors.NewExpired("rendezvous channel no longer exists")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, false, errors.NewHTTPError(resp.StatusCode, string(body))
	}
}

// Close implements Channel.Close.
func (c *HTTPChannel) Close() error {
	c.mu.Lock()
	if c.closed || c.uri == "" {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	uri := c.uri
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, uri, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

func resolveLocation(base, location string) (string, error) {
	u, err := urlJoin(base, location)
	if err != nil {
		return "", fmt.Errorf("relay returned unusable location %q: %w", location, err)
	}
	return u, nil
}
