package models

import (
	"encoding/json"
	"testing"
)

func TestNormalizedBookLiquid(t *testing.T) {
	lvl := []PriceLevel{{Price: 0.3, Quantity: 2}}
	cases := []struct {
		name   string
		book   NormalizedBook
		liquid bool
	}{
		{"both sides", NormalizedBook{Bids: lvl, Asks: lvl}, true},
		{"no bids", NormalizedBook{Asks: lvl}, false},
		{"no asks", NormalizedBook{Bids: lvl}, false},
		{"empty", NormalizedBook{}, false},
	}
	for _, c := range cases {
		if got := c.book.Liquid(); got != c.liquid {
			t.Errorf("%s: Liquid() = %v, want %v", c.name, got, c.liquid)
		}
	}
}

func TestDeribitBookResultDecode(t *testing.T) {
	payload := `{
		"jsonrpc": "2.0",
		"id": 1,
		"result": {
			"instrument_name": "BTC-26SEP26-60000-C",
			"underlying_price": 20000,
			"mark_price": 0.32,
			"bids": [[0.30, 2], [0.25, 4]],
			"asks": [[0.35, 1]]
		}
	}`
	var resp DeribitResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	var book DeribitBookResult
	if err := json.Unmarshal(resp.Result, &book); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if book.InstrumentName != "BTC-26SEP26-60000-C" {
		t.Errorf("unexpected instrument: %s", book.InstrumentName)
	}
	if book.UnderlyingPrice == nil || *book.UnderlyingPrice != 20000 {
		t.Errorf("unexpected underlying price: %v", book.UnderlyingPrice)
	}
	if len(book.Bids) != 2 || book.Bids[0][0] != 0.30 || book.Bids[0][1] != 2 {
		t.Errorf("unexpected bids: %v", book.Bids)
	}
}

func TestDeribitBookResultAbsentFields(t *testing.T) {
	var book DeribitBookResult
	if err := json.Unmarshal([]byte(`{"instrument_name":"x","bids":[],"asks":[]}`), &book); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if book.UnderlyingPrice != nil {
		t.Errorf("expected nil underlying price, got %v", *book.UnderlyingPrice)
	}
	if book.MarkPrice != nil {
		t.Errorf("expected nil mark price, got %v", *book.MarkPrice)
	}
}
