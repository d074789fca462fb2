package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pasthortown/cripto/internal/model"
)

// UpsertCandles writes candles idempotently by open_time in one ordered
// bulk write and returns the number of newly inserted minutes. Duplicate
// keys (a concurrent writer won the race) count as success.
func (s *Store) UpsertCandles(ctx context.Context, symbol string, candles []model.Candle) (int64, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	coll := s.db.Collection(candleColl(symbol))
	if err := s.ensureIndex(ctx, coll); err != nil {
		return 0, err
	}

	models := make([]mongo.WriteModel, 0, len(candles))
	for _, c := range candles {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"open_time": c.OpenTime}).
			SetReplacement(c).
			SetUpsert(true))
	}

	res, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return 0, classify(err)
	}
	if res == nil {
		return 0, nil
	}
	return res.UpsertedCount, nil
}

// LastCandle returns the newest stored candle, or nil when the symbol has
// no data yet.
func (s *Store) LastCandle(ctx context.Context, symbol string) (*model.Candle, error) {
	coll := s.db.Collection(candleColl(symbol))
	opts := options.FindOne().SetSort(bson.D{{Key: "open_time", Value: -1}})

	var c model.Candle
	err := coll.FindOne(ctx, bson.M{}, opts).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

// CandlesRange returns candles ordered by open_time ascending. Bounds are
// inclusive; with no bounds and a positive limit the NEWEST limit rows are
// returned, still ascending.
func (s *Store) CandlesRange(ctx context.Context, symbol string, start, end, limit int64) ([]model.Candle, error) {
	coll := s.db.Collection(candleColl(symbol))

	lastN := start < 0 && end < 0 && limit > 0
	opts := options.Find().SetSort(bson.D{{Key: "open_time", Value: 1}})
	if lastN {
		opts.SetSort(bson.D{{Key: "open_time", Value: -1}})
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := coll.Find(ctx, rangeFilter(start, end), opts)
	if err != nil {
		return nil, classify(err)
	}
	var out []model.Candle
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	if lastN {
		reverseCandles(out)
	}
	return out, nil
}

// RealDataCovers reports whether a real candle exists for every minute of
// [hour:00, hour:60) on the given UTC day.
func (s *Store) RealDataCovers(ctx context.Context, symbol string, day time.Time, hour int) (bool, error) {
	coll := s.db.Collection(candleColl(symbol))
	hs := model.HourStartMs(day, hour)

	n, err := coll.CountDocuments(ctx, bson.M{
		"open_time": bson.M{"$gte": hs, "$lt": hs + model.HourMs},
	})
	if err != nil {
		return false, classify(err)
	}
	return n == 60, nil
}

// Stats summarizes the stored series for one symbol.
func (s *Store) Stats(ctx context.Context, symbol string) (*model.SymbolStats, error) {
	coll := s.db.Collection(candleColl(symbol))

	total, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, classify(err)
	}
	if total == 0 {
		return nil, model.ErrUnknownSymbol
	}

	var first, last model.Candle
	if err := coll.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "open_time", Value: 1}})).Decode(&first); err != nil {
		return nil, classify(err)
	}
	if err := coll.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "open_time", Value: -1}})).Decode(&last); err != nil {
		return nil, classify(err)
	}

	return &model.SymbolStats{
		Symbol:       strings.ToUpper(symbol),
		TotalRecords: total,
		FirstRecord:  first.OpenTime,
		LastRecord:   last.OpenTime,
		LastPrice:    last.Close,
	}, nil
}

func reverseCandles(cs []model.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
