package ledger

import (
	"context"

	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
)

// LedgerIndexer resolves the current ledger index. XRPLClient implements it.
type LedgerIndexer interface {
	CurrentLedger(ctx context.Context) (int64, error)
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCollectorLogger sets a custom logger.
func WithCollectorLogger(l logger.Logger) CollectorOption {
	return func(c *Collector) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMaxPages stops collection after n pages. Zero means no limit.
func WithMaxPages(n int) CollectorOption {
	return func(c *Collector) {
		if n >= 0 {
			c.maxPages = n
		}
	}
}

// Collector walks every page of a query.
type Collector struct {
	client   Client
	maxPages int
	log      logger.Logger
}

// NewCollector creates a Collector reading from client.
func NewCollector(client Client, opts ...CollectorOption) *Collector {
	c := &Collector{
		client: client,
		log:    logger.Get().Named("ledger-collector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect returns every transaction of q in ledger order. A MaxLedger of
// zero is resolved to the current ledger when the client can tell it, and
// to the latest validated ledger otherwise.
func (c *Collector) Collect(ctx context.Context, q Query) ([]model.Transaction, error) {
	if q.MaxLedger == 0 {
		q.MaxLedger = -1
		if idx, ok := c.client.(LedgerIndexer); ok {
			current, err := idx.CurrentLedger(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "resolve end ledger")
			}
			q.MaxLedger = current
		}
	}
	if q.MaxLedger > 0 && q.MinLedger > q.MaxLedger {
		return nil, errors.Mark(errors.Newf("start ledger %d is after end ledger %d", q.MinLedger, q.MaxLedger), ErrInvalidQuery)
	}

	c.log.Info(ctx, "collecting ledger transactions",
		logger.String("account", q.Account),
		logger.Int64("min_ledger", q.MinLedger),
		logger.Int64("max_ledger", q.MaxLedger))

	var (
		out    []model.Transaction
		cursor string
		pages  int
	)
	for {
		page, err := c.client.FetchTransactions(ctx, q, cursor)
		if err != nil {
			return nil, errors.Wrapf(err, "page %d", pages+1)
		}
		pages++
		out = append(out, page.Transactions...)

		c.log.Debug(ctx, "ledger page read",
			logger.Int("page", pages),
			logger.Int("transactions", len(page.Transactions)),
			logger.Int("total", len(out)))

		if page.Cursor == "" {
			break
		}
		if page.Cursor == cursor {
			return nil, errors.Mark(errors.Newf("cursor did not advance after page %d", pages), ErrInvalidResponse)
		}
		if c.maxPages > 0 && pages >= c.maxPages {
			c.log.Warn(ctx, "page limit reached, stopping early", logger.Int("pages", pages))
			break
		}
		cursor = page.Cursor
	}

	c.log.Info(ctx, "ledger collection finished",
		logger.Int("pages", pages),
		logger.Int("transactions", len(out)))
	return out, nil
}
