package analyzer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"optionflow/models"
	"optionflow/processor"
)

type stubCatalog struct {
	instruments []models.Instrument
	err         error
}

func (s stubCatalog) Instruments(ctx context.Context) ([]models.Instrument, error) {
	return s.instruments, s.err
}

// stubFetcher serves canned payloads keyed by URL; missing URLs fail.
type stubFetcher struct {
	payloads map[string][]byte
}

func (s stubFetcher) Fetch(ctx context.Context, urls []string) []models.FetchResult {
	results := make([]models.FetchResult, len(urls))
	for i, u := range urls {
		if payload, ok := s.payloads[u]; ok {
			results[i] = models.FetchResult{URL: u, Payload: payload}
		} else {
			results[i] = models.FetchResult{URL: u, Err: errors.New("timeout after retries")}
		}
	}
	return results
}

func (s stubFetcher) FetchOne(ctx context.Context, url string) ([]byte, error) {
	if payload, ok := s.payloads[url]; ok {
		return payload, nil
	}
	return nil, errors.New("timeout after retries")
}

func bookPayload(name string, underlying float64, bids, asks string) []byte {
	return []byte(fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"result": {
			"instrument_name": %q,
			"underlying_price": %g,
			"mark_price": 0.32,
			"bids": %s,
			"asks": %s
		}
	}`, name, underlying, bids, asks))
}

func testAnalyzer() *Analyzer {
	catalog := stubCatalog{instruments: []models.Instrument{
		{Name: "liquid", URL: "u/liquid"},
		{Name: "one-sided", URL: "u/one-sided"},
		{Name: "unreachable", URL: "u/unreachable"},
	}}
	fetcher := stubFetcher{payloads: map[string][]byte{
		"u/liquid":    bookPayload("liquid", 20000, "[[0.30,2],[0.25,4]]", "[[0.35,1],[0.40,3]]"),
		"u/one-sided": bookPayload("one-sided", 20000, "[]", "[[0.40,3]]"),
	}}
	return New(catalog, fetcher)
}

func TestDepthSummariesWholeBook(t *testing.T) {
	rows, err := testAnalyzer().DepthSummaries(context.Background(), 0)
	if err != nil {
		t.Fatalf("DepthSummaries: %v", err)
	}
	// one-sided is excluded by the liquidity rule, unreachable by its
	// fetch failure; neither becomes a fabricated row.
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1: %+v", len(rows), rows)
	}
	if rows[0].InstrumentName != "liquid" {
		t.Errorf("unexpected instrument: %s", rows[0].InstrumentName)
	}
	if rows[0].BidNotionalThousands != 32.0 || rows[0].AskNotionalThousands != 31.0 {
		t.Errorf("unexpected notionals: %+v", rows[0])
	}
}

func TestDepthSummariesTopLevels(t *testing.T) {
	rows, err := testAnalyzer().DepthSummaries(context.Background(), 1)
	if err != nil {
		t.Fatalf("DepthSummaries: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].BidNotionalThousands != 12.0 || rows[0].AskNotionalThousands != 7.0 {
		t.Errorf("unexpected notionals: %+v", rows[0])
	}
}

func TestDepthSummariesNegativeTopLevels(t *testing.T) {
	_, err := testAnalyzer().DepthSummaries(context.Background(), -1)
	var invalid *processor.InvalidParameterError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidParameterError", err)
	}
}

func TestDepthSummariesHaltsOnMalformedSnapshot(t *testing.T) {
	catalog := stubCatalog{instruments: []models.Instrument{
		{Name: "good", URL: "u/good"},
		{Name: "corrupt", URL: "u/corrupt"},
	}}
	fetcher := stubFetcher{payloads: map[string][]byte{
		"u/good":    bookPayload("good", 20000, "[[0.30,2]]", "[[0.35,1]]"),
		"u/corrupt": []byte(`{"result":{"instrument_name":"corrupt","bids":[[0.3,2]],"asks":[]}}`),
	}}

	_, err := New(catalog, fetcher).DepthSummaries(context.Background(), 0)
	var malformed *processor.MalformedSnapshotError
	if !errors.As(err, &malformed) {
		t.Fatalf("got %v, want MalformedSnapshotError", err)
	}
}

func TestBook(t *testing.T) {
	book, err := testAnalyzer().Book(context.Background(), "liquid")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !book.Liquid() {
		t.Error("expected liquid book")
	}
	if book.Bids[1].CumulativeNotionalUSD != 32000 {
		t.Errorf("unexpected cumulative: %g", book.Bids[1].CumulativeNotionalUSD)
	}
}

func TestBookUnknownInstrument(t *testing.T) {
	_, err := testAnalyzer().Book(context.Background(), "no-such-option")
	var invalid *processor.InvalidParameterError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidParameterError", err)
	}
}

func TestMarkPrice(t *testing.T) {
	mark, err := testAnalyzer().MarkPrice(context.Background(), "liquid")
	if err != nil {
		t.Fatalf("MarkPrice: %v", err)
	}
	if mark != 0.32 {
		t.Errorf("mark price = %g, want 0.32", mark)
	}
}

func TestMarkPriceFetchFailure(t *testing.T) {
	_, err := testAnalyzer().MarkPrice(context.Background(), "unreachable")
	if err == nil {
		t.Fatal("expected error for unreachable instrument")
	}
	var invalid *processor.InvalidParameterError
	if errors.As(err, &invalid) {
		t.Fatalf("fetch failure must not be a parameter error: %v", err)
	}
}
