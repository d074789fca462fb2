package model

// Prediction is one predicted 1-minute bar. It mirrors the Candle shape
// plus the inference provenance fields. Within one predicted hour the
// bars chain: Open of minute k equals Close of minute k-1, and Open of
// minute 0 equals the real close of the last minute before the hour.
type Prediction struct {
	OpenTime     int64   `json:"open_time" bson:"open_time"`
	Open         float64 `json:"open" bson:"open"`
	High         float64 `json:"high" bson:"high"`
	Low          float64 `json:"low" bson:"low"`
	Close        float64 `json:"close" bson:"close"`
	Volume       float64 `json:"volume" bson:"volume"`
	CloseTime    int64   `json:"close_time" bson:"close_time"`
	PredictedAt  int64   `json:"predicted_at" bson:"predicted_at"`   // wall clock of the inference run, epoch ms
	ModelVersion string  `json:"model_version" bson:"model_version"` // model set date tag, YYYYMMDD
	MinutesAhead int     `json:"minutes_ahead" bson:"minutes_ahead"` // horizon that produced this minute
}
