package processor

import (
	"encoding/json"
	"fmt"

	"optionflow/models"
)

// DecodeSnapshot parses a Deribit get_order_book response body into a
// RawSnapshot. Structural problems (missing envelope, non-numeric
// levels, missing underlying price alongside resting orders) yield a
// *MalformedSnapshotError; an in-band JSON-RPC error is returned as a
// plain error since it is an API failure, not corrupt data.
func DecodeSnapshot(payload []byte) (models.RawSnapshot, error) {
	var resp models.DeribitResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return models.RawSnapshot{}, &MalformedSnapshotError{Reason: fmt.Sprintf("invalid json envelope: %v", err)}
	}
	if resp.Error != nil {
		return models.RawSnapshot{}, fmt.Errorf("deribit error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result) == 0 {
		return models.RawSnapshot{}, &MalformedSnapshotError{Reason: "missing result object"}
	}

	var book models.DeribitBookResult
	if err := json.Unmarshal(resp.Result, &book); err != nil {
		return models.RawSnapshot{}, &MalformedSnapshotError{Reason: fmt.Sprintf("invalid book result: %v", err)}
	}
	if book.InstrumentName == "" {
		return models.RawSnapshot{}, &MalformedSnapshotError{Reason: "missing instrument_name"}
	}

	raw := models.RawSnapshot{InstrumentName: book.InstrumentName}
	if book.UnderlyingPrice != nil {
		raw.UnderlyingPrice = *book.UnderlyingPrice
	}
	if book.MarkPrice != nil {
		raw.MarkPrice = *book.MarkPrice
	}
	if (len(book.Bids) > 0 || len(book.Asks) > 0) && book.UnderlyingPrice == nil {
		return models.RawSnapshot{}, &MalformedSnapshotError{
			Instrument: book.InstrumentName,
			Reason:     "missing underlying_price with non-empty book",
		}
	}

	var err error
	if raw.Bids, err = decodeLevels(book.InstrumentName, "bid", book.Bids); err != nil {
		return models.RawSnapshot{}, err
	}
	if raw.Asks, err = decodeLevels(book.InstrumentName, "ask", book.Asks); err != nil {
		return models.RawSnapshot{}, err
	}
	return raw, nil
}

func decodeLevels(instrument, side string, pairs [][]float64) ([]models.RawLevel, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	levels := make([]models.RawLevel, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, &MalformedSnapshotError{
				Instrument: instrument,
				Reason:     fmt.Sprintf("%s level %d has %d elements, want 2", side, i, len(pair)),
			}
		}
		levels[i] = models.RawLevel{Price: pair[0], Quantity: pair[1]}
	}
	return levels, nil
}

// Normalize converts a raw snapshot into its USD-denominated depth
// representation. Each side keeps its input order; per level, the USD
// unit price is the native premium times the underlying price, the
// notional that times quantity, and the cumulative field the prefix sum
// of notionals from the best level. An empty raw side stays empty
// rather than failing: one-sided books are a market condition, not an
// error. Zero-price and zero-quantity levels pass through unfiltered.
//
// Normalize is pure; it neither logs nor retries.
func Normalize(raw models.RawSnapshot) (models.NormalizedBook, error) {
	if (len(raw.Bids) > 0 || len(raw.Asks) > 0) && raw.UnderlyingPrice <= 0 {
		return models.NormalizedBook{}, &MalformedSnapshotError{
			Instrument: raw.InstrumentName,
			Reason:     fmt.Sprintf("non-positive underlying price %g with non-empty book", raw.UnderlyingPrice),
		}
	}
	return models.NormalizedBook{
		InstrumentName: raw.InstrumentName,
		Bids:           normalizeSide(raw.Bids, raw.UnderlyingPrice),
		Asks:           normalizeSide(raw.Asks, raw.UnderlyingPrice),
	}, nil
}

func normalizeSide(levels []models.RawLevel, underlying float64) []models.PriceLevel {
	if len(levels) == 0 {
		return nil
	}
	out := make([]models.PriceLevel, len(levels))
	var cumulative float64
	for i, lvl := range levels {
		usd := lvl.Price * underlying
		notional := usd * lvl.Quantity
		cumulative += notional
		out[i] = models.PriceLevel{
			Price:                 lvl.Price,
			Quantity:              lvl.Quantity,
			USDPrice:              usd,
			NotionalUSD:           notional,
			CumulativeNotionalUSD: cumulative,
		}
	}
	return out
}
