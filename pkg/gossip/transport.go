package gossip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DeltasPath is the gossip endpoint every node serves.
const DeltasPath = "/_deltas"

var ErrUnexpectedStatus = errors.New("unexpected status from peer")

// Transport fetches deltas from a peer. addr is host:port.
type Transport interface {
	Pull(ctx context.Context, addr string, since map[string]int64) (Message, error)
}

// HTTPTransport pulls over HTTP GET /_deltas.
type HTTPTransport struct {
	client *resty.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

func (t *HTTPTransport) Pull(ctx context.Context, addr string, since map[string]int64) (Message, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(EncodeCursors(since)).
		Get("http://" + addr + DeltasPath)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", addr, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("pull %s: %w: %d", addr, ErrUnexpectedStatus, resp.StatusCode())
	}

	var msg Message
	if err := json.Unmarshal(resp.Body(), &msg); err != nil {
		return nil, fmt.Errorf("pull %s: decode: %w", addr, err)
	}
	return msg, nil
}
