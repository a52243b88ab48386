// Package catalog discovers the currently listed, non-expired option
// instruments for an underlying asset via Deribit's public REST API and
// pairs each with its order book snapshot endpoint.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
	"optionflow/processor"
)

const userAgent = "optionflow/1.0"

// Deribit lists tradeable options through public/get_instruments.
type Deribit struct {
	config *appconfig.Config
	client *http.Client
	log    *logger.Log
}

// NewDeribit creates a catalog client with a tuned connection pool.
func NewDeribit(cfg *appconfig.Config) *Deribit {
	pool := cfg.Source.Deribit.ConnectionPool
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout.Std(),
	}

	return &Deribit{
		config: cfg,
		client: &http.Client{
			Transport: userAgentTransport{agent: userAgent, base: transport},
			Timeout:   cfg.Fetcher.Timeout.Std(),
		},
		log: logger.GetLogger(),
	}
}

// Instruments returns every listed, non-expired option on the
// configured asset together with its snapshot fetch URL. The asset must
// be BTC or ETH.
func (d *Deribit) Instruments(ctx context.Context) ([]models.Instrument, error) {
	asset := strings.ToUpper(d.config.Source.Deribit.Asset)
	switch asset {
	case "BTC", "ETH":
	default:
		return nil, &processor.InvalidParameterError{
			Param:  "asset",
			Reason: fmt.Sprintf("unsupported asset '%s'", asset),
		}
	}

	base := baseURL(d.config.Source.Deribit.BaseURL)
	listURL := fmt.Sprintf("%sget_instruments?currency=%s&expired=false&kind=option", base, asset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build instruments request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch instruments: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read instruments response: %w", err)
	}

	var envelope models.DeribitResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse instruments response: %w", err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("deribit error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}

	var rows []models.DeribitInstrument
	if err := json.Unmarshal(envelope.Result, &rows); err != nil {
		return nil, fmt.Errorf("parse instruments result: %w", err)
	}

	instruments := make([]models.Instrument, 0, len(rows))
	for _, row := range rows {
		if row.InstrumentName == "" {
			continue
		}
		if row.Kind != "" && row.Kind != "option" {
			continue
		}
		instruments = append(instruments, models.Instrument{
			Name: row.InstrumentName,
			URL:  fmt.Sprintf("%sget_order_book?instrument_name=%s", base, row.InstrumentName),
		})
	}

	d.log.WithComponent("catalog").WithFields(logger.Fields{
		"asset":       asset,
		"instruments": len(instruments),
	}).Info("discovered option instruments")

	return instruments, nil
}

func baseURL(raw string) string {
	if strings.HasSuffix(raw, "/") {
		return raw
	}
	return raw + "/"
}
