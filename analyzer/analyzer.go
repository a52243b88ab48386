// Package analyzer wires instrument discovery, bulk fetching and the
// normalization core into the operations a depth analysis session
// needs: a cross-sectional depth table and single-book inspection.
package analyzer

import (
	"context"
	"fmt"

	"optionflow/logger"
	"optionflow/models"
	"optionflow/processor"
)

// Catalog lists the instruments to analyze.
type Catalog interface {
	Instruments(ctx context.Context) ([]models.Instrument, error)
}

// Fetcher retrieves snapshot payloads. Both the REST and websocket
// clients satisfy it.
type Fetcher interface {
	Fetch(ctx context.Context, urls []string) []models.FetchResult
	FetchOne(ctx context.Context, url string) ([]byte, error)
}

// Analyzer is the orchestration facade over catalog, fetcher and
// processor. It holds no state between calls; each method is an
// independent point-in-time analysis.
type Analyzer struct {
	catalog Catalog
	fetcher Fetcher
	log     *logger.Log
}

func New(catalog Catalog, fetcher Fetcher) *Analyzer {
	return &Analyzer{
		catalog: catalog,
		fetcher: fetcher,
		log:     logger.GetLogger(),
	}
}

// DepthSummaries fetches every listed option, normalizes the books and
// aggregates per-instrument USD depth. topLevels restricts each side's
// sum to its best N levels; zero means whole-book. Instruments whose
// fetch failed terminally are skipped (their absence is the fetch
// layer's resolved outcome), but the first structurally malformed
// snapshot aborts the whole call.
func (a *Analyzer) DepthSummaries(ctx context.Context, topLevels int) ([]models.DepthSummary, error) {
	if topLevels < 0 {
		return nil, &processor.InvalidParameterError{
			Param:  "top_levels",
			Reason: fmt.Sprintf("must not be negative, got %d", topLevels),
		}
	}

	instruments, err := a.catalog.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	urls := make([]string, len(instruments))
	for i, inst := range instruments {
		urls[i] = inst.URL
	}

	results := a.fetcher.Fetch(ctx, urls)

	log := a.log.WithComponent("analyzer")
	books := make([]models.NormalizedBook, 0, len(results))
	skipped := 0
	for i, result := range results {
		if result.Err != nil {
			skipped++
			log.WithError(result.Err).WithFields(logger.Fields{
				"instrument": instruments[i].Name,
			}).Warn("skipping instrument after fetch failure")
			continue
		}

		raw, err := processor.DecodeSnapshot(result.Payload)
		if err != nil {
			return nil, err
		}
		book, err := processor.Normalize(raw)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}

	a.log.LogMetric("analyzer", "snapshots_normalized", float64(len(books)), nil)
	if skipped > 0 {
		a.log.LogMetric("analyzer", "snapshots_skipped", float64(skipped), nil)
	}

	if topLevels > 0 {
		return processor.AggregateTop(books, topLevels)
	}
	return processor.Aggregate(books), nil
}

// Book fetches and normalizes a single named instrument. The name must
// match a listed instrument exactly; zero matches is a parameter error,
// not a malformed snapshot.
func (a *Analyzer) Book(ctx context.Context, instrumentName string) (models.NormalizedBook, error) {
	raw, err := a.rawBook(ctx, instrumentName)
	if err != nil {
		return models.NormalizedBook{}, err
	}
	return processor.Normalize(raw)
}

// MarkPrice returns the exchange's fair-value estimate for one
// instrument, available on single-instrument fetches.
func (a *Analyzer) MarkPrice(ctx context.Context, instrumentName string) (float64, error) {
	raw, err := a.rawBook(ctx, instrumentName)
	if err != nil {
		return 0, err
	}
	return raw.MarkPrice, nil
}

func (a *Analyzer) rawBook(ctx context.Context, instrumentName string) (models.RawSnapshot, error) {
	instruments, err := a.catalog.Instruments(ctx)
	if err != nil {
		return models.RawSnapshot{}, fmt.Errorf("list instruments: %w", err)
	}

	var url string
	for _, inst := range instruments {
		if inst.Name == instrumentName {
			url = inst.URL
			break
		}
	}
	if url == "" {
		return models.RawSnapshot{}, &processor.InvalidParameterError{
			Param:  "instrument_name",
			Reason: fmt.Sprintf("unknown instrument '%s'", instrumentName),
		}
	}

	payload, err := a.fetcher.FetchOne(ctx, url)
	if err != nil {
		return models.RawSnapshot{}, fmt.Errorf("fetch %s: %w", instrumentName, err)
	}
	return processor.DecodeSnapshot(payload)
}
