package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// WSClient fetches snapshots through Deribit's JSON-RPC websocket
// endpoint instead of per-request REST calls. One connection serves the
// whole batch; requests are issued sequentially with increasing ids.
// The payload handed downstream is the raw JSON-RPC envelope, the same
// shape the REST transport returns.
type WSClient struct {
	config *appconfig.Config
	dialer *websocket.Dialer
	log    *logger.Log
}

// NewWSClient creates a websocket fetch client.
func NewWSClient(cfg *appconfig.Config) *WSClient {
	return &WSClient{
		config: cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Fetcher.Timeout.Std()},
		log:    logger.GetLogger(),
	}
}

// Fetch resolves each snapshot URL to its instrument name and requests
// the book over the websocket. Results align positionally with the
// input, same contract as the REST client. The connection is redialed
// between retry attempts.
func (c *WSClient) Fetch(ctx context.Context, urls []string) []models.FetchResult {
	results := make([]models.FetchResult, len(urls))
	if len(urls) == 0 {
		return results
	}

	log := c.log.WithComponent("ws_fetcher").WithFields(logger.Fields{"urls": len(urls)})
	log.Info("starting websocket fetch")
	start := time.Now()

	conn, err := c.dial(ctx)
	if err != nil {
		for i, u := range urls {
			results[i] = models.FetchResult{URL: u, Err: err}
		}
		return results
	}
	defer func() { conn.Close() }()

	var id int64
	for i, rawURL := range urls {
		if ctx.Err() != nil {
			results[i] = models.FetchResult{URL: rawURL, Err: ctx.Err()}
			continue
		}

		instrument, err := instrumentFromURL(rawURL)
		if err != nil {
			results[i] = models.FetchResult{URL: rawURL, Err: err}
			continue
		}

		id++
		payload, callErr := c.callWithRetry(ctx, &conn, id, instrument)
		results[i] = models.FetchResult{URL: rawURL, Payload: payload, Err: callErr}
	}

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}
	logger.LogPerformanceEntry(log, "ws_fetcher", "bulk_fetch", time.Since(start), logger.Fields{
		"failures": failures,
	})

	return results
}

// FetchOne retrieves a single URL over a dedicated connection.
func (c *WSClient) FetchOne(ctx context.Context, url string) ([]byte, error) {
	results := c.Fetch(ctx, []string{url})
	return results[0].Payload, results[0].Err
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.config.Source.Deribit.WebsocketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.config.Source.Deribit.WebsocketURL, err)
	}
	return conn, nil
}

// callWithRetry issues one public/get_order_book call. On transport
// failure the connection is replaced and the call retried per the
// configured policy; the caller's *conn always points at a live
// connection afterwards when nil error is returned.
func (c *WSClient) callWithRetry(ctx context.Context, conn **websocket.Conn, id int64, instrument string) ([]byte, error) {
	retryCfg := c.config.Fetcher.Retry
	delay := &backoff.Backoff{
		Min:    retryCfg.BaseDelay.Std(),
		Max:    retryCfg.MaxDelay.Std(),
		Factor: float64(retryCfg.BackoffMultiplier),
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= retryCfg.MaxAttempts; attempt++ {
		payload, err := c.call(*conn, id, instrument)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		c.log.WithComponent("ws_fetcher").WithError(err).WithFields(logger.Fields{
			"instrument": instrument,
			"attempt":    attempt,
		}).Warn("websocket call failed")

		if attempt == retryCfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(delay.Duration()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		(*conn).Close()
		fresh, dialErr := c.dial(ctx)
		if dialErr != nil {
			return nil, dialErr
		}
		*conn = fresh
	}

	return nil, fmt.Errorf("get_order_book %s: %w", instrument, lastErr)
}

func (c *WSClient) call(conn *websocket.Conn, id int64, instrument string) ([]byte, error) {
	timeout := c.config.Fetcher.Timeout.Std()
	request := models.DeribitRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "public/get_order_book",
		Params:  map[string]string{"instrument_name": instrument},
	}

	conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteJSON(request); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		conn.SetReadDeadline(deadline)
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		// Deribit may interleave heartbeats; skip frames until ours.
		var envelope models.DeribitResponse
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, fmt.Errorf("invalid websocket frame: %w", err)
		}
		if envelope.ID == id {
			return payload, nil
		}
	}
}

// instrumentFromURL extracts the instrument_name query parameter from a
// snapshot REST endpoint, letting both transports share the catalog's
// URL scheme.
func instrumentFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse snapshot url: %w", err)
	}
	instrument := parsed.Query().Get("instrument_name")
	if instrument == "" {
		return "", fmt.Errorf("snapshot url %s has no instrument_name", rawURL)
	}
	return instrument, nil
}
