// Package ledger reads token transactions from an XRPL node over JSON-RPC.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
	"github.com/okian/memocred/pkg/metrics"
)

const (
	defaultPageLimit = 400
	breakerName      = "ledger"
)

// errTransient marks failures the client retries.
var errTransient = errors.New("transient ledger failure")

// Query selects the transactions of one account in a ledger range.
// MaxLedger -1 means the latest validated ledger.
type Query struct {
	Account   string
	MinLedger int64
	MaxLedger int64
	Limit     int
}

// Page is one batch of transactions. Cursor is empty on the last page.
type Page struct {
	Transactions []model.Transaction
	Cursor       string
}

// Client fetches pages of raw transactions.
type Client interface {
	FetchTransactions(ctx context.Context, q Query, cursor string) (Page, error)
}

// XRPLClient implements Client against a rippled JSON-RPC endpoint.
type XRPLClient struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter

	retryBudget     int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	breakerFailures uint32
	breakerTimeout  time.Duration

	log logger.Logger
}

// NewXRPLClient creates a client for endpoint.
func NewXRPLClient(endpoint string, opts ...Option) *XRPLClient {
	c := &XRPLClient{
		endpoint:        strings.TrimRight(endpoint, "/"),
		http:            &http.Client{Timeout: 60 * time.Second},
		retryBudget:     3,
		initialBackoff:  500 * time.Millisecond,
		maxBackoff:      10 * time.Second,
		breakerFailures: 5,
		breakerTimeout:  30 * time.Second,
		log:             logger.Get().Named("ledger"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			c.log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
		// Only connectivity problems count against the node.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, errTransient)
		},
	})
	metrics.UpdateBreakerState(breakerName, int(gobreaker.StateClosed))
	return c
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

type accountTxParams struct {
	Account        string          `json:"account"`
	LedgerIndexMin int64           `json:"ledger_index_min"`
	LedgerIndexMax int64           `json:"ledger_index_max"`
	Forward        bool            `json:"forward"`
	Limit          int             `json:"limit"`
	Marker         json.RawMessage `json:"marker,omitempty"`
}

type accountTxResult struct {
	Transactions []accountTxEntry `json:"transactions"`
	Marker       json.RawMessage  `json:"marker"`
}

// accountTxEntry covers both API versions: v1 nests the transaction under
// "tx", v2 under "tx_json" with hash and ledger index beside it.
type accountTxEntry struct {
	Tx          json.RawMessage `json:"tx"`
	TxJSON      json.RawMessage `json:"tx_json"`
	Hash        string          `json:"hash"`
	LedgerIndex int64           `json:"ledger_index"`
}

type wireTx struct {
	Hash            string          `json:"hash"`
	TransactionType string          `json:"TransactionType"`
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	Amount          json.RawMessage `json:"Amount"`
	DeliverMax      json.RawMessage `json:"DeliverMax"`
	LedgerIndex     int64           `json:"ledger_index"`
	Date            int64           `json:"date"`
	Memos           []struct {
		Memo struct {
			MemoData   string `json:"MemoData"`
			MemoType   string `json:"MemoType"`
			MemoFormat string `json:"MemoFormat"`
		} `json:"Memo"`
	} `json:"Memos"`
}

type wireAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

// FetchTransactions reads one account_tx page in forward ledger order.
func (c *XRPLClient) FetchTransactions(ctx context.Context, q Query, cursor string) (Page, error) {
	if q.Account == "" {
		return Page{}, errors.Mark(errors.New("account is required"), ErrInvalidQuery)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	params := accountTxParams{
		Account:        q.Account,
		LedgerIndexMin: q.MinLedger,
		LedgerIndexMax: q.MaxLedger,
		Forward:        true,
		Limit:          limit,
	}
	if cursor != "" {
		params.Marker = json.RawMessage(cursor)
	}

	start := time.Now()
	raw, err := c.call(ctx, "account_tx", params)
	if err != nil {
		metrics.RecordLedgerError()
		return Page{}, err
	}
	metrics.RecordLedgerPage(float64(time.Since(start).Milliseconds()))

	var res accountTxResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return Page{}, errors.Mark(errors.Wrap(err, "decode account_tx result"), ErrInvalidResponse)
	}

	page := Page{Transactions: make([]model.Transaction, 0, len(res.Transactions))}
	for i, entry := range res.Transactions {
		tx, err := decodeEntry(entry)
		if err != nil {
			return Page{}, errors.Mark(errors.Wrapf(err, "decode transaction %d", i), ErrInvalidResponse)
		}
		page.Transactions = append(page.Transactions, tx)
	}
	if m := bytes.TrimSpace(res.Marker); len(m) > 0 && !bytes.Equal(m, []byte("null")) {
		page.Cursor = string(m)
	}
	return page, nil
}

// CurrentLedger returns the index of the node's current open ledger.
func (c *XRPLClient) CurrentLedger(ctx context.Context) (int64, error) {
	raw, err := c.call(ctx, "ledger_current", struct{}{})
	if err != nil {
		return 0, err
	}
	var res struct {
		Index int64 `json:"ledger_current_index"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.Index <= 0 {
		return 0, errors.Mark(errors.New("missing ledger_current_index"), ErrInvalidResponse)
	}
	return res.Index, nil
}

// call runs one JSON-RPC method through the limiter, the breaker and the
// retry loop and returns the raw result object.
func (c *XRPLClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	op := func() (json.RawMessage, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		v, err := c.breaker.Execute(func() (interface{}, error) {
			return c.post(ctx, body)
		})
		if err == nil {
			return v.(json.RawMessage), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(errors.Mark(errors.Wrap(err, method), ErrLedgerUnavailable))
		}
		if errors.Is(err, errTransient) && ctx.Err() == nil {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.retryBudget+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Warn(ctx, "retrying ledger request",
				logger.String("method", method),
				logger.Duration("wait", wait),
				logger.Error(err))
		}),
	)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, errors.Wrapf(context.Cause(ctx), "%s cancelled", method)
	}
	if errors.Is(err, errTransient) {
		return nil, errors.Mark(errors.Wrapf(err, "%s after %d attempts", method, c.retryBudget+1), ErrLedgerUnavailable)
	}
	return nil, err
}

func (c *XRPLClient) post(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "send request"), errTransient)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read response"), errTransient)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, errors.Mark(errors.Newf("ledger node returned status %d", resp.StatusCode), errTransient)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Mark(errors.Newf("ledger node returned status %d: %s", resp.StatusCode, snippet(payload)), ErrInvalidResponse)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || len(envelope.Result) == 0 {
		return nil, errors.Mark(errors.Newf("malformed response: %s", snippet(payload)), ErrInvalidResponse)
	}

	var st rpcStatus
	_ = json.Unmarshal(envelope.Result, &st)
	if st.Status == "error" || st.Error != "" {
		err := errors.Newf("rippled error %s: %s", st.Error, st.ErrorMessage)
		if transientCodes[st.Error] {
			return nil, errors.Mark(err, errTransient)
		}
		return nil, errors.Mark(err, ErrInvalidResponse)
	}
	return envelope.Result, nil
}

func decodeEntry(e accountTxEntry) (model.Transaction, error) {
	raw := e.Tx
	if len(raw) == 0 {
		raw = e.TxJSON
	}
	if len(raw) == 0 {
		return model.Transaction{}, errors.New("entry without transaction")
	}

	var w wireTx
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		Hash:        w.Hash,
		Type:        w.TransactionType,
		Account:     w.Account,
		Destination: w.Destination,
		LedgerIndex: w.LedgerIndex,
		Date:        w.Date,
	}
	if tx.Hash == "" {
		tx.Hash = e.Hash
	}
	if tx.LedgerIndex == 0 {
		tx.LedgerIndex = e.LedgerIndex
	}

	amount := w.Amount
	if len(amount) == 0 {
		amount = w.DeliverMax
	}
	a, err := decodeAmount(amount)
	if err != nil {
		return model.Transaction{}, err
	}
	tx.Amount = a

	for _, m := range w.Memos {
		tx.Memos = append(tx.Memos, model.Memo{
			Data:   m.Memo.MemoData,
			Type:   m.Memo.MemoType,
			Format: m.Memo.MemoFormat,
		})
	}
	return tx, nil
}

// decodeAmount accepts native drops as a JSON string or an issued amount
// object. A missing amount is left zero.
func decodeAmount(raw json.RawMessage) (model.Amount, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.Amount{}, nil
	}
	if raw[0] == '"' {
		var drops string
		if err := json.Unmarshal(raw, &drops); err != nil {
			return model.Amount{}, err
		}
		return model.Amount{Drops: drops}, nil
	}
	var w wireAmount
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Amount{}, err
	}
	return model.Amount{Currency: w.Currency, Issuer: w.Issuer, Value: w.Value}, nil
}

func snippet(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "... " + strconv.Itoa(len(b)-limit) + " more bytes"
	}
	return string(b)
}
