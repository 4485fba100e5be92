// Package holders fetches on-demand holder balance snapshots for a mint
// from the indexer service.
package holders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Holder is one wallet's raw token balance.
type Holder struct {
	Address string
	Balance float64
}

// Client queries the holder snapshot endpoint. Safe for concurrent use.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a holder snapshot client for endpoint.
func NewClient(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Snapshot returns the current holders of mint sorted by balance ascending.
// The service keys its response by balance, so entries with unparseable
// balances are dropped. Every addressable entry is kept, program-derived
// accounts included; excluding the pool account is the caller's concern.
// A mint the service has no data for yields nil, nil.
func (c *Client) Snapshot(ctx context.Context, mint string) ([]Holder, error) {
	query := url.Values{}
	query.Set("key", fmt.Sprintf("holders:{%s}", mint))
	query.Set("type", "sorted")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build holders request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch holders: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch holders: unexpected status %d", resp.StatusCode)
	}

	// The body maps balance strings to addresses.
	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode holders response: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	out := make([]Holder, 0, len(raw))
	for balance, address := range raw {
		b, err := strconv.ParseFloat(balance, 64)
		if err != nil {
			c.logger.Debug("dropping holder entry with bad balance",
				zap.String("balance", balance), zap.String("address", address))
			continue
		}
		out = append(out, Holder{Address: address, Balance: b})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Balance < out[j].Balance })
	return out, nil
}
