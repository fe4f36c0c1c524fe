package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/internal/domain"
)

const (
	// DefaultHost is the production venue API host.
	DefaultHost = "https://api.elections.kalshi.com"
	// PathPrefix is prepended to every REST path.
	PathPrefix = "/trade-api/v2"

	restAttempts   = 3
	requestTimeout = 30 * time.Second
	connectTimeout = 15 * time.Second
)

// StatusError is a non-2xx response from the venue. Never retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("venue returned status %d: %s", e.Code, e.Body)
}

// Client is the signed REST client for the contract venue.
type Client struct {
	host   string
	signer *Signer
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a REST client against the given host.
func NewClient(host string, signer *Signer, logger *zap.Logger) *Client {
	if host == "" {
		host = DefaultHost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		host:   host,
		signer: signer,
		http:   newHTTPClient(),
		logger: logger,
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			ResponseHeaderTimeout: connectTimeout,
		},
	}
}

// do executes one signed request with up to restAttempts tries. Only
// connection and timeout failures are retried, with a short linear wait and
// a fresh HTTP client each retry; status errors surface immediately.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	fullPath := PathPrefix + path

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
	}

	var lastErr error
	for attempt := 0; attempt < restAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * time.Second // 1s, 2s
			c.logger.Warn("transient venue error, retrying",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			// Force a fresh connection on retry.
			c.http.CloseIdleConnections()
			c.http = newHTTPClient()
		}

		headers, err := c.signer.Headers(method, fullPath)
		if err != nil {
			return err
		}

		target := c.host + fullPath
		if len(query) > 0 {
			target += "?" + query.Encode()
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return errors.Wrap(err, "build request")
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !isTransient(err) {
				return errors.Wrapf(err, "%s %s", method, path)
			}
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{Code: resp.StatusCode, Body: truncate(string(respBody), 200)}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "decode %s %s response", method, path)
		}
		return nil
	}

	return errors.Wrapf(lastErr, "%s %s failed after %d attempts", method, path, restAttempts)
}

// isTransient reports whether a request error is worth retrying: timeouts and
// network-level failures (refused connections, resets). Anything else wrapped
// in a url.Error, such as a TLS verification failure, is permanent.
func isTransient(err error) bool {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return false
	}
	if uerr.Timeout() {
		return true
	}
	var operr *net.OpError
	return errors.As(uerr.Err, &operr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Balance returns the account balance in cents.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	var resp balanceResponse
	if err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// ActiveMarket returns the open contract nearest expiry in the series, or
// nil when none is tradeable.
func (c *Client) ActiveMarket(ctx context.Context, series string) (*domain.Market, error) {
	query := url.Values{}
	query.Set("series_ticker", series)
	query.Set("status", "open")
	query.Set("limit", "5")

	var resp marketsResponse
	if err := c.do(ctx, http.MethodGet, "/markets", query, nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	var best *domain.Market
	for _, m := range resp.Markets {
		snap, ok := m.Snapshot(now)
		if !ok || snap.SecondsToClose <= 0 {
			continue
		}
		if best == nil || snap.SecondsToClose < best.SecondsToClose {
			s := snap
			best = &s
		}
	}
	return best, nil
}

// MarketByTicker fetches one market, including its settlement result.
func (c *Client) MarketByTicker(ctx context.Context, ticker string) (*Market, error) {
	var resp marketResponse
	if err := c.do(ctx, http.MethodGet, "/markets/"+ticker, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Market, nil
}

// Orderbook fetches the resting book for one market.
func (c *Client) Orderbook(ctx context.Context, ticker string) (*domain.Orderbook, error) {
	var resp orderbookResponse
	if err := c.do(ctx, http.MethodGet, "/markets/"+ticker+"/orderbook", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orderbook.domain(), nil
}

// Positions returns the open portfolio positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	query := url.Values{}
	query.Set("limit", "20")
	var resp positionsResponse
	if err := c.do(ctx, http.MethodGet, "/portfolio/positions", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.MarketPositions, nil
}

// PlaceOrder submits a limit order.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// GetOrder fetches an order by id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp orderResponse
	if err := c.do(ctx, http.MethodGet, "/portfolio/orders/"+orderID, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// CancelOrder cancels a resting order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, "/portfolio/orders/"+orderID, nil, nil, nil)
}

// CancelAllOrders cancels every resting order. Failures are logged, not
// fatal: stale orders are reconciled by the next cycle's position fetch.
func (c *Client) CancelAllOrders(ctx context.Context) {
	body := map[string]string{"action": "cancel_all"}
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders/batched", nil, body, nil); err != nil {
		c.logger.Warn("cancel all orders failed", zap.Error(err))
	}
}

// Fills returns recent execution reports.
func (c *Client) Fills(ctx context.Context, ticker string, limit int) ([]Fill, error) {
	query := url.Values{}
	if ticker != "" {
		query.Set("ticker", ticker)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	var resp fillsResponse
	if err := c.do(ctx, http.MethodGet, "/portfolio/fills", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Fills, nil
}
