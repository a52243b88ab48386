package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"optionflow/models"
)

// bookServer upgrades connections and answers public/get_order_book
// calls with a fixed book for the requested instrument.
func bookServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var req models.DeribitRPCRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Method != "public/get_order_book" {
				t.Errorf("unexpected method: %s", req.Method)
				return
			}
			reply := fmt.Sprintf(`{
				"jsonrpc": "2.0",
				"id": %d,
				"result": {
					"instrument_name": %q,
					"underlying_price": 20000,
					"mark_price": 0.32,
					"bids": [[0.30, 2]],
					"asks": [[0.35, 1]]
				}
			}`, req.ID, req.Params["instrument_name"])
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
}

func TestWSFetch(t *testing.T) {
	srv := bookServer(t)
	defer srv.Close()

	cfg := minimalConfig()
	cfg.Source.Deribit.WebsocketURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	urls := []string{
		"https://example.com/api/v2/public/get_order_book?instrument_name=BTC-26SEP26-60000-C",
		"https://example.com/api/v2/public/get_order_book?instrument_name=BTC-26SEP26-60000-P",
	}
	results := NewWSClient(cfg).Fetch(context.Background(), urls)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("result %d: %v", i, res.Err)
		}
		var envelope models.DeribitResponse
		if err := json.Unmarshal(res.Payload, &envelope); err != nil {
			t.Fatalf("result %d payload: %v", i, err)
		}
		var book models.DeribitBookResult
		if err := json.Unmarshal(envelope.Result, &book); err != nil {
			t.Fatalf("result %d book: %v", i, err)
		}
		wantName := "BTC-26SEP26-60000-C"
		if i == 1 {
			wantName = "BTC-26SEP26-60000-P"
		}
		if book.InstrumentName != wantName {
			t.Errorf("result %d instrument = %s, want %s", i, book.InstrumentName, wantName)
		}
	}
}

func TestWSFetchBadURL(t *testing.T) {
	srv := bookServer(t)
	defer srv.Close()

	cfg := minimalConfig()
	cfg.Source.Deribit.WebsocketURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	results := NewWSClient(cfg).Fetch(context.Background(), []string{"https://example.com/no-instrument"})
	if results[0].Err == nil {
		t.Fatal("expected error for url without instrument_name")
	}
}

func TestWSFetchDialFailure(t *testing.T) {
	cfg := minimalConfig()
	cfg.Source.Deribit.WebsocketURL = "ws://127.0.0.1:1/ws"

	results := NewWSClient(cfg).Fetch(context.Background(), []string{
		"https://example.com/get_order_book?instrument_name=a",
		"https://example.com/get_order_book?instrument_name=b",
	})
	for i, res := range results {
		if res.Err == nil {
			t.Errorf("result %d: expected dial error", i)
		}
	}
}

func TestInstrumentFromURL(t *testing.T) {
	name, err := instrumentFromURL("https://www.deribit.com/api/v2/public/get_order_book?instrument_name=ETH-26SEP26-3000-P")
	if err != nil {
		t.Fatalf("instrumentFromURL: %v", err)
	}
	if name != "ETH-26SEP26-3000-P" {
		t.Errorf("unexpected instrument: %s", name)
	}
	if _, err := instrumentFromURL("https://example.com/plain"); err == nil {
		t.Error("expected error for missing instrument_name")
	}
}
