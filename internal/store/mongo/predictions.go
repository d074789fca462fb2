package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pasthortown/cripto/internal/model"
)

// UpsertPredictions writes predictions idempotently by open_time. Re-runs
// of an already persisted hour replace the documents in place.
func (s *Store) UpsertPredictions(ctx context.Context, symbol string, preds []model.Prediction) (int64, error) {
	if len(preds) == 0 {
		return 0, nil
	}
	coll := s.db.Collection(predictionColl(symbol))
	if err := s.ensureIndex(ctx, coll); err != nil {
		return 0, err
	}

	models := make([]mongo.WriteModel, 0, len(preds))
	for _, p := range preds {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"open_time": p.OpenTime}).
			SetReplacement(p).
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

// PredictionsRange returns predictions ordered by open_time ascending,
// with the same bound semantics as CandlesRange.
func (s *Store) PredictionsRange(ctx context.Context, symbol string, start, end, limit int64) ([]model.Prediction, error) {
	coll := s.db.Collection(predictionColl(symbol))

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
	var out []model.Prediction
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	if lastN {
		reversePredictions(out)
	}
	return out, nil
}

// HourHasPrediction reports whether any prediction exists inside hour h of
// the given UTC day.
func (s *Store) HourHasPrediction(ctx context.Context, symbol string, day time.Time, hour int) (bool, error) {
	coll := s.db.Collection(predictionColl(symbol))
	hs := model.HourStartMs(day, hour)

	n, err := coll.CountDocuments(ctx, bson.M{
		"open_time": bson.M{"$gte": hs, "$lt": hs + model.HourMs},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

// LastPredictedHourToday returns the max hour-of-day holding at least one
// prediction on the given UTC day, or -1 when there is none.
func (s *Store) LastPredictedHourToday(ctx context.Context, symbol string, day time.Time) (int, error) {
	coll := s.db.Collection(predictionColl(symbol))
	ds := model.DayStart(day).UnixMilli()

	var p model.Prediction
	err := coll.FindOne(ctx, bson.M{
		"open_time": bson.M{"$gte": ds, "$lt": ds + 24*model.HourMs},
	}, options.FindOne().SetSort(bson.D{{Key: "open_time", Value: -1}})).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return -1, nil
	}
	if err != nil {
		return -1, classify(err)
	}
	return int((p.OpenTime - ds) / model.HourMs), nil
}

func reversePredictions(ps []model.Prediction) {
	for i, j := 0, len(ps)-1; i < j; i, j = i+1, j-1 {
		ps[i], ps[j] = ps[j], ps[i]
	}
}
