package model

// SymbolStats summarizes one symbol's stored real series.
// FirstRecord and LastRecord are open_time values in epoch ms;
// LastPrice is the close of the newest stored minute.
type SymbolStats struct {
	Symbol       string  `json:"symbol"`
	TotalRecords int64   `json:"total_records"`
	FirstRecord  int64   `json:"first_record"`
	LastRecord   int64   `json:"last_record"`
	LastPrice    float64 `json:"last_price"`
}

// SyncResult reports the outcome of one ingest pass for one symbol.
type SyncResult struct {
	Symbol     string      `json:"symbol"`
	NewRecords int64       `json:"new_records"`
	Stats      SymbolStats `json:"statistics"`
}
