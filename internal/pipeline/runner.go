// Package pipeline wires the stream transport, the instruction decoder and
// the pool tracker into one processing loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pumpswap-radar/internal/dex/pumpswap"
	"pumpswap-radar/internal/domain"
	"pumpswap-radar/internal/geyser"
	"pumpswap-radar/internal/observability"
	"pumpswap-radar/internal/solana"
	"pumpswap-radar/internal/tracker"
	"pumpswap-radar/internal/trade"
)

// RunnerOptions contains the wired components for a Runner. Trade is
// optional; without it (or with a disabled client) the runner only tracks.
type RunnerOptions struct {
	Stream  *geyser.Client
	Request geyser.SubscribeRequest
	Parser  *pumpswap.Parser
	Tracker *tracker.Tracker
	Trade   *trade.Client
	// Order is the template for submitted orders; side and pool are
	// filled in per entry.
	Order  trade.Order
	Logger *zap.Logger
}

// Runner consumes the transaction stream, decodes each transaction in
// arrival order and feeds the events to the tracker. The tracker's
// reconciliation sweep runs alongside the intake loop.
type Runner struct {
	stream  *geyser.Client
	request geyser.SubscribeRequest
	parser  *pumpswap.Parser
	tracker *tracker.Tracker
	trade   *trade.Client
	order   trade.Order
	logger  *zap.Logger

	entered map[string]struct{}
}

// NewRunner creates a pipeline runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		stream:  opts.Stream,
		request: opts.Request,
		parser:  opts.Parser,
		tracker: opts.Tracker,
		trade:   opts.Trade,
		order:   opts.Order,
		logger:  logger,
		entered: make(map[string]struct{}),
	}
}

// Run blocks until ctx is canceled or the stream shuts down.
func (r *Runner) Run(ctx context.Context) error {
	updates, err := r.stream.Subscribe(ctx, r.request)
	if err != nil {
		return fmt.Errorf("subscribe to stream: %w", err)
	}
	r.logger.Info("pipeline started")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.tracker.Run(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case upd, ok := <-updates:
				if !ok {
					return errors.New("stream closed")
				}
				r.process(ctx, upd)
			}
		}
	})

	return g.Wait()
}

// process decodes one transaction and applies its events in order.
func (r *Runner) process(ctx context.Context, upd geyser.TransactionUpdate) {
	events := r.parser.Parse(upd.Txn, upd.ReceivedAt)
	for _, ev := range events {
		observability.RecordEventDecoded(string(ev.Kind))
		r.tracker.OnEvent(ctx, ev)
	}
	r.maybeEnter(ctx, events)
}

// maybeEnter implements the entry heuristic: a migration immediately
// followed in the same transaction by a sizable quote-side buy marks a pool
// worth entering, after a delay scaled to the buy size. Dormant unless the
// trading client is enabled.
func (r *Runner) maybeEnter(ctx context.Context, events []*domain.DecodedEvent) {
	if r.trade == nil || !r.trade.Enabled() || len(events) < 2 {
		return
	}
	migration := events[0]
	if migration.Kind != domain.EventAddLiquidity || !migration.Migrated {
		return
	}
	swap := events[1]
	if swap.Kind != domain.EventSwap || swap.InMint != solana.WSOL {
		return
	}
	if _, ok := r.entered[swap.Pair]; ok {
		return
	}
	r.entered[swap.Pair] = struct{}{}

	var delay time.Duration
	switch {
	case swap.InUIAmount > 55:
		delay = 40 * time.Second
	case swap.InUIAmount > 40:
		delay = 4 * time.Second
	default:
		return
	}

	order := r.order
	order.Side = string(domain.SideBuy)
	order.PoolID = swap.Pair

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := r.trade.Submit(ctx, order); err != nil {
			r.logger.Warn("entry order failed",
				zap.String("pair", order.PoolID), zap.Error(err))
			return
		}
		r.logger.Info("entry order submitted", zap.String("pair", order.PoolID))
	}()
}
