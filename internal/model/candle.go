package model

// Candle represents one finalized 1-minute OHLCV bar for a trading pair.
// All times are UTC epoch milliseconds: OpenTime is the minute boundary
// and CloseTime is OpenTime + 59_999. The auxiliary exchange fields are
// carried opaquely from the upstream REST payload into storage.
type Candle struct {
	OpenTime      int64   `json:"open_time" bson:"open_time"`
	Open          float64 `json:"open" bson:"open"`
	High          float64 `json:"high" bson:"high"`
	Low           float64 `json:"low" bson:"low"`
	Close         float64 `json:"close" bson:"close"`
	Volume        float64 `json:"volume" bson:"volume"`
	CloseTime     int64   `json:"close_time" bson:"close_time"`
	QuoteVolume   float64 `json:"quote_asset_volume" bson:"quote_asset_volume"`
	Trades        int64   `json:"number_of_trades" bson:"number_of_trades"`
	TakerBuyBase  float64 `json:"taker_buy_base_asset_volume" bson:"taker_buy_base_asset_volume"`
	TakerBuyQuote float64 `json:"taker_buy_quote_asset_volume" bson:"taker_buy_quote_asset_volume"`
}
