package models

import "encoding/json"

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// DERIBIT ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// DeribitResponse is the JSON-RPC 2.0 envelope every Deribit public
// endpoint answers with, over both REST and websocket.
type DeribitResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *DeribitError   `json:"error"`
}

// DeribitError is the error object of a failed JSON-RPC call.
type DeribitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DeribitBookResult mirrors the result object of public/get_order_book.
// Levels arrive as 2-element [price, quantity] numeric arrays; the
// pointer fields distinguish absent from zero.
type DeribitBookResult struct {
	InstrumentName  string      `json:"instrument_name"`
	UnderlyingPrice *float64    `json:"underlying_price"`
	MarkPrice       *float64    `json:"mark_price"`
	Bids            [][]float64 `json:"bids"`
	Asks            [][]float64 `json:"asks"`
}

// DeribitInstrument mirrors one row of public/get_instruments.
type DeribitInstrument struct {
	InstrumentName string `json:"instrument_name"`
	Kind           string `json:"kind"`
	IsActive       bool   `json:"is_active"`
}

// DeribitRPCRequest is an outgoing JSON-RPC call on the websocket
// transport.
type DeribitRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int64             `json:"id"`
	Method  string            `json:"method"`
	Params  map[string]string `json:"params"`
}
