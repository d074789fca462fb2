package gateway

import (
	"time"

	"github.com/pasthortown/cripto/internal/model"
)

// ── Client → server frames ──

type clientFrame struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols,omitempty"`
}

// ── Server → client envelopes ──
// Envelope timestamps are RFC3339 UTC strings.

type connectedMsg struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ackMsg struct {
	Type      string   `json:"type"` // "subscribed" or "unsubscribed"
	Symbols   []string `json:"symbols"`
	Timestamp string   `json:"timestamp"`
}

type pongMsg struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type errorMsg struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type syncCompleteMsg struct {
	Type       string         `json:"type"`
	Symbol     string         `json:"symbol"`
	Timestamp  string         `json:"timestamp"`
	Statistics syncStatistics `json:"statistics"`
}

type syncStatistics struct {
	NewRecords   int64   `json:"new_records"`
	TotalRecords int64   `json:"total_records"`
	LastPrice    float64 `json:"last_price"`
	LastRecord   int64   `json:"last_record"`
}

type statsMsg struct {
	Type      string    `json:"type"`
	Data      statsData `json:"data"`
	Timestamp string    `json:"timestamp"`
}

type statsData struct {
	TotalConnections int            `json:"total_connections"`
	Subscriptions    map[string]int `json:"subscriptions"`
}

// ── REST bodies ──

type syncRequest struct {
	Symbol string `json:"symbol"`
}

type syncResponse struct {
	Success    bool              `json:"success"`
	Symbol     string            `json:"symbol"`
	NewRecords int64             `json:"new_records"`
	Statistics model.SymbolStats `json:"statistics"`
}

type symbolsResponse struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Symbols []model.SymbolStats `json:"symbols"`
}

type statsResponse struct {
	Success    bool              `json:"success"`
	Statistics model.SymbolStats `json:"statistics"`
}

type candlesResponse struct {
	Success bool           `json:"success"`
	Symbol  string         `json:"symbol"`
	Count   int            `json:"count"`
	Data    []model.Candle `json:"data"`
}

type predictionsResponse struct {
	Success bool               `json:"success"`
	Symbol  string             `json:"symbol"`
	Count   int                `json:"count"`
	Data    []model.Prediction `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// wsNow formats the current time the way every envelope carries it.
func wsNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
