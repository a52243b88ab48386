package models

// RawLevel is a single resting (price, quantity) pair as reported by the
// exchange. Price is quoted in units of the underlying asset.
type RawLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// RawSnapshot is a point-in-time order book for one option instrument,
// exactly as fetched. Bids are ordered best-to-worst (descending price),
// asks best-to-worst (ascending price); either side may be empty.
// MarkPrice is only populated on single-instrument fetches.
type RawSnapshot struct {
	InstrumentName  string     `json:"instrument_name"`
	UnderlyingPrice float64    `json:"underlying_price"`
	MarkPrice       float64    `json:"mark_price"`
	Bids            []RawLevel `json:"bids"`
	Asks            []RawLevel `json:"asks"`
}

// PriceLevel is one normalized order book level. USDPrice converts the
// option premium into USD via the underlying spot price; NotionalUSD is
// the resting value at this level and CumulativeNotionalUSD the running
// sum from the best level down.
type PriceLevel struct {
	Price                 float64 `json:"coin_price"`
	Quantity              float64 `json:"quantity"`
	USDPrice              float64 `json:"usd_price"`
	NotionalUSD           float64 `json:"total_usd"`
	CumulativeNotionalUSD float64 `json:"cumulative_usd"`
}

// NormalizedBook is the USD-denominated depth representation of one
// instrument. Level order matches the raw snapshot; an empty raw side
// stays empty here.
type NormalizedBook struct {
	InstrumentName string       `json:"instrument_name"`
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
}

// Liquid reports whether the book has resting orders on both sides.
// One-sided books are excluded from cross-sectional depth metrics.
func (b NormalizedBook) Liquid() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0
}

// DepthSummary is one aggregated row per liquid instrument. Notionals
// are in thousands of USD.
type DepthSummary struct {
	InstrumentName       string  `json:"product_name"`
	BidNotionalThousands float64 `json:"bids_thousands"`
	AskNotionalThousands float64 `json:"asks_thousands"`
}

// Instrument is a catalog row: a tradeable option and the endpoint its
// order book snapshot is fetched from.
type Instrument struct {
	Name string `json:"instrument_name"`
	URL  string `json:"instrument_url"`
}

// FetchResult is the outcome of fetching one snapshot endpoint. Exactly
// one of Payload and Err is meaningful: a transport failure is never
// turned into an empty book.
type FetchResult struct {
	URL     string
	Payload []byte
	Err     error
}
