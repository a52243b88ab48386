// Package fetcher retrieves order book snapshots in bulk. It owns all
// retry, timeout, rate limit and concurrency concerns so that the
// normalization core downstream only ever sees either a payload or a
// terminal failure per endpoint.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

const userAgent = "optionflow/1.0"

// Client fetches snapshot endpoints over REST with a bounded worker
// pool. A failed URL stays failed in its result; it is never replaced
// with an empty payload.
type Client struct {
	config  *appconfig.Config
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient creates a REST fetch client with a tuned connection pool
// and a shared rate limiter sized from the config.
func NewClient(cfg *appconfig.Config) *Client {
	pool := cfg.Source.Deribit.ConnectionPool
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout.Std(),
	}

	return &Client{
		config: cfg,
		client: &http.Client{Transport: transport},
		limiter: rate.NewLimiter(
			rate.Limit(cfg.Fetcher.RateLimit.RequestsPerSecond),
			cfg.Fetcher.RateLimit.BurstSize,
		),
		log: logger.GetLogger(),
	}
}

// Fetch retrieves every URL using up to max_workers concurrent workers.
// Results are positionally aligned with the input; each carries either
// the response payload or the terminal error after retries were
// exhausted.
func (c *Client) Fetch(ctx context.Context, urls []string) []models.FetchResult {
	results := make([]models.FetchResult, len(urls))
	if len(urls) == 0 {
		return results
	}

	workers := c.config.Fetcher.MaxWorkers
	if workers > len(urls) {
		workers = len(urls)
	}
	if workers < 1 {
		workers = 1
	}

	log := c.log.WithComponent("fetcher").WithFields(logger.Fields{
		"urls":    len(urls),
		"workers": workers,
	})
	log.Info("starting bulk fetch")
	start := time.Now()

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = c.fetchWithRetry(ctx, urls[idx])
			}
		}()
	}

feed:
	for i := range urls {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(urls); j++ {
				results[j] = models.FetchResult{URL: urls[j], Err: ctx.Err()}
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}
	logger.LogPerformanceEntry(log, "fetcher", "bulk_fetch", time.Since(start), logger.Fields{
		"failures": failures,
	})

	return results
}

// FetchOne retrieves a single URL with the same retry policy as Fetch.
func (c *Client) FetchOne(ctx context.Context, url string) ([]byte, error) {
	result := c.fetchWithRetry(ctx, url)
	return result.Payload, result.Err
}

func (c *Client) fetchWithRetry(ctx context.Context, url string) models.FetchResult {
	retryCfg := c.config.Fetcher.Retry
	delay := &backoff.Backoff{
		Min:    retryCfg.BaseDelay.Std(),
		Max:    retryCfg.MaxDelay.Std(),
		Factor: float64(retryCfg.BackoffMultiplier),
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= retryCfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return models.FetchResult{URL: url, Err: err}
		}

		payload, retryable, err := c.get(ctx, url)
		if err == nil {
			return models.FetchResult{URL: url, Payload: payload}
		}
		lastErr = err

		if !retryable {
			break
		}
		if attempt == retryCfg.MaxAttempts {
			break
		}

		c.log.WithComponent("fetcher").WithError(err).WithFields(logger.Fields{
			"url":     url,
			"attempt": attempt,
		}).Warn("fetch attempt failed, retrying")

		select {
		case <-time.After(delay.Duration()):
		case <-ctx.Done():
			return models.FetchResult{URL: url, Err: ctx.Err()}
		}
	}

	return models.FetchResult{URL: url, Err: fmt.Errorf("fetch %s: %w", url, lastErr)}
}

// get performs one HTTP attempt. The bool reports whether the failure
// is worth retrying: transport errors, 429 and 5xx are; other non-200
// statuses are terminal.
func (c *Client) get(ctx context.Context, url string) ([]byte, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Fetcher.Timeout.Std())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return payload, false, nil
}
