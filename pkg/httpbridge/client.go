package httpbridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/morezero/idl-bridge/pkg/dispatcher"
)

// Client calls bridged functions over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for a bridge at baseURL. A nil hc uses http.DefaultClient.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: hc}
}

// Send posts data, JSON encoded, to route and decodes the envelope. The route must
// start with "/". A nil data sends an empty body.
func (c *Client) Send(ctx context.Context, route string, data any) (*dispatcher.Envelope, error) {
	var body []byte
	if data != nil {
		var err error
		body, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("httpbridge:client - failed to encode request: %w", err)
		}
	}
	return c.SendRaw(ctx, route, body)
}

// SendRaw posts body verbatim to route.
func (c *Client) SendRaw(ctx context.Context, route string, body []byte) (*dispatcher.Envelope, error) {
	if !strings.HasPrefix(route, "/") {
		return nil, fmt.Errorf("httpbridge:client - route %q must start with '/'", route)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpbridge:client - failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpbridge:client - request to %s failed: %w", route, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpbridge:client - failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpbridge:client - %s returned %d: %s", route, resp.StatusCode, bytes.TrimSpace(data))
	}
	return dispatcher.DecodeEnvelope(data)
}
