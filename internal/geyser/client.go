package geyser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pumpswap-radar/internal/observability"
)

// Interceptor mutates the handshake headers of every connection attempt.
type Interceptor func(http.Header)

// WithToken authenticates the connection via the X-Token header.
func WithToken(token string) Interceptor {
	return func(h http.Header) {
		if token != "" {
			h.Set("X-Token", token)
		}
	}
}

// Config configures stream client behavior.
type Config struct {
	// PingInterval is the interval between keep-alive pings.
	PingInterval time.Duration
	// IdleTimeout terminates a connection that delivered nothing for this
	// long; the client then reconnects with the same subscription.
	IdleTimeout time.Duration
	// ReconnectDelay is the fixed delay between reconnect attempts.
	ReconnectDelay time.Duration
	// WriteTimeout is the deadline for subscribe and ping writes.
	WriteTimeout time.Duration
	// Buffer is the update channel capacity. Once full, reads block so no
	// update is dropped.
	Buffer int
	// DedupWindow is how many recent signatures are remembered to drop
	// re-delivered transactions after a reconnect.
	DedupWindow int
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() Config {
	return Config{
		PingInterval:   15 * time.Second,
		IdleTimeout:    600 * time.Second,
		ReconnectDelay: 5 * time.Second,
		WriteTimeout:   10 * time.Second,
		Buffer:         1024,
		DedupWindow:    8192,
	}
}

// Client streams program transactions over a websocket and resubscribes
// transparently after drops. Updates are delivered in arrival order on a
// single channel.
type Client struct {
	endpoint     string
	config       Config
	logger       *zap.Logger
	interceptors []Interceptor

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	req     SubscribeRequest
	updates chan TransactionUpdate
	seen    *sigCache

	subscribed atomic.Bool

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient creates a stream client for endpoint. Interceptors run against
// the handshake headers of every connection attempt, initial and reconnect
// alike.
func NewClient(endpoint string, config *Config, logger *zap.Logger, interceptors ...Interceptor) *Client {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint:     endpoint,
		config:       cfg,
		logger:       logger,
		interceptors: interceptors,
		updates:      make(chan TransactionUpdate, cfg.Buffer),
		seen:         newSigCache(cfg.DedupWindow),
		done:         make(chan struct{}),
	}
}

// Subscribe opens the stream with req and returns the update channel. The
// channel is closed when ctx is canceled or Close is called. Subscribe may
// be called once per client.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) (<-chan TransactionUpdate, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}
	if c.subscribed.Swap(true) {
		return nil, fmt.Errorf("already subscribed")
	}

	c.req = req

	c.wg.Add(1)
	go c.run(ctx)

	return c.updates, nil
}

// Close shuts the stream down and waits for its goroutines.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

// run owns the connect/stream/reconnect cycle.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.updates)

	for {
		conn, err := c.connect(ctx)
		if err != nil {
			return
		}

		c.stream(ctx, conn)

		if c.closed.Load() || ctx.Err() != nil {
			return
		}

		observability.RecordReconnect()
		c.logger.Info("reconnecting stream",
			zap.Duration("delay", c.config.ReconnectDelay))

		select {
		case <-time.After(c.config.ReconnectDelay):
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// connect dials and subscribes, retrying at a fixed interval until it
// succeeds or the client stops.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	operation := func() (*websocket.Conn, error) {
		if c.closed.Load() {
			return nil, backoff.Permanent(fmt.Errorf("client closed"))
		}
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("stream connect failed", zap.Error(err))
			return nil, err
		}
		return conn, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.config.ReconnectDelay)))
}

// dial opens one connection and writes the subscription on it.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	for _, intercept := range c.interceptors {
		intercept(header)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(&c.req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info("stream connected", zap.String("endpoint", c.endpoint))
	return conn, nil
}

// stream reads updates until the connection dies or goes idle too long.
func (c *Client) stream(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)

	c.wg.Add(2)
	go c.pingLoop(conn, stop)
	go func() {
		// Unblock the read when the client or context stops.
		defer c.wg.Done()
		select {
		case <-ctx.Done():
			conn.Close()
		case <-c.done:
			conn.Close()
		case <-stop:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.IdleTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || ctx.Err() != nil {
				return
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				c.logger.Warn("terminating idle stream connection",
					zap.Duration("idle_timeout", c.config.IdleTimeout))
			} else {
				c.logger.Warn("stream read failed", zap.Error(err))
			}
			conn.Close()
			return
		}

		c.handleMessage(ctx, message)
	}
}

// pingLoop sends keep-alive pings on conn until the stream ends. A failed
// write closes the connection so the read loop reconnects.
func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	ping := pingRequest()

	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			// connMu serializes this write against the close frame in
			// Close; the connection allows one writer at a time.
			c.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := conn.WriteJSON(&ping)
			c.connMu.Unlock()
			if err != nil {
				observability.RecordPingFailure()
				c.logger.Warn("ping write failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

// handleMessage parses one inbound message and forwards transaction updates.
// Unparseable messages are logged and skipped; the stream stays up.
func (c *Client) handleMessage(ctx context.Context, message []byte) {
	var upd update
	if err := json.Unmarshal(message, &upd); err != nil {
		c.logger.Debug("unparseable stream message", zap.Error(err))
		return
	}

	if upd.Transaction == nil {
		// Pong or provider housekeeping.
		return
	}

	txn := upd.Transaction
	if sig := txn.Signature(); sig != "" && c.seen.seen(sig) {
		observability.RecordDuplicateSkipped()
		return
	}

	now := time.Now()
	observability.RecordStreamMessage(now.Unix())

	// Block until the pipeline takes the update; never drop.
	select {
	case c.updates <- TransactionUpdate{Txn: txn, ReceivedAt: now}:
	case <-ctx.Done():
	case <-c.done:
	}
}

// sigCache is a fixed-size FIFO set of recent transaction signatures.
type sigCache struct {
	mu    sync.Mutex
	set   map[string]struct{}
	order []string
	limit int
}

func newSigCache(limit int) *sigCache {
	return &sigCache{
		set:   make(map[string]struct{}, limit),
		limit: limit,
	}
}

// seen records sig and reports whether it was already present.
func (s *sigCache) seen(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[sig]; ok {
		return true
	}

	s.set[sig] = struct{}{}
	s.order = append(s.order, sig)
	if len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.set, oldest)
	}
	return false
}
