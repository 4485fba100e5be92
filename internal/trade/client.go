// Package trade submits buy and sell orders to the trading API. The client
// ships disabled unless explicitly enabled; a disabled client rejects every
// order without touching the network.
package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ErrTradingDisabled is returned by Submit when the client is disabled.
var ErrTradingDisabled = errors.New("trading disabled")

// Order is one buy or sell request. The API accepts a batch but orders are
// submitted one at a time.
type Order struct {
	Type          string  `json:"type"`
	Side          string  `json:"side"`
	Unit          string  `json:"unit"`
	WalletAddress string  `json:"walletAddress"`
	PoolID        string  `json:"poolId"`
	Amount        float64 `json:"amount"`
	Slippage      float64 `json:"slippage"`
	PriorityFee   float64 `json:"priorityFee"`
	TipAmount     float64 `json:"tipAmount"`
}

// Options configures the trading client.
type Options struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client posts orders to the trading API. Safe for concurrent use.
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a trading client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
	}
}

// Enabled reports whether the client submits orders.
func (c *Client) Enabled() bool {
	return c.opts.Enabled
}

// Submit sends order to the trading API. The order type is forced to
// "trading", the only kind the endpoint accepts.
func (c *Client) Submit(ctx context.Context, order Order) error {
	if !c.opts.Enabled {
		return ErrTradingDisabled
	}

	order.Type = "trading"
	body, err := json.Marshal([]Order{order})
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")
	req.Header.Set("clienttimestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if c.opts.APIKey != "" {
		req.Header.Set("x-api-key", c.opts.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("submit order: status %d: %s", resp.StatusCode, respBody)
	}

	c.logger.Debug("order submitted",
		zap.String("pool", order.PoolID),
		zap.String("side", order.Side),
		zap.ByteString("response", respBody))
	return nil
}
