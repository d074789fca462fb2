// Package mongo implements the document-store adapter. One collection per
// symbol: klines_{symbol} for the real series, prediccion_klines_{symbol}
// for predictions, both with a unique index on open_time.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pasthortown/cripto/internal/model"
)

const (
	candlePrefix     = "klines_"
	predictionPrefix = "prediccion_klines_"
)

// Store is the Mongo-backed implementation of the storage ports.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger

	mu      sync.Mutex
	indexed map[string]bool // collections with the unique open_time index ensured
}

// Connect dials the document store and verifies connectivity with a ping.
func Connect(ctx context.Context, uri, database string, log zerolog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	log.Info().Str("database", database).Msg("document store connected")
	return &Store{
		client:  client,
		db:      client.Database(database),
		log:     log,
		indexed: make(map[string]bool),
	}, nil
}

// Ping reports storage connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close releases the underlying connections.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Symbols lists all symbols with at least one stored candle, uppercased
// and sorted.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, classify(err)
	}

	var symbols []string
	for _, name := range names {
		if !strings.HasPrefix(name, candlePrefix) {
			continue
		}
		n, err := s.db.Collection(name).CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1))
		if err != nil {
			return nil, classify(err)
		}
		if n == 0 {
			continue
		}
		symbols = append(symbols, strings.ToUpper(strings.TrimPrefix(name, candlePrefix)))
	}
	sort.Strings(symbols)
	return symbols, nil
}

func candleColl(symbol string) string {
	return candlePrefix + strings.ToLower(symbol)
}

func predictionColl(symbol string) string {
	return predictionPrefix + strings.ToLower(symbol)
}

// ensureIndex creates the unique open_time index once per collection.
func (s *Store) ensureIndex(ctx context.Context, coll *mongo.Collection) error {
	s.mu.Lock()
	done := s.indexed[coll.Name()]
	s.mu.Unlock()
	if done {
		return nil
	}

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "open_time", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return classify(err)
	}

	s.mu.Lock()
	s.indexed[coll.Name()] = true
	s.mu.Unlock()
	s.log.Debug().Str("collection", coll.Name()).Msg("unique open_time index ensured")
	return nil
}

// rangeFilter builds the open_time bounds filter. Negative bounds are
// treated as unbounded.
func rangeFilter(start, end int64) bson.M {
	rng := bson.M{}
	if start >= 0 {
		rng["$gte"] = start
	}
	if end >= 0 {
		rng["$lte"] = end
	}
	if len(rng) == 0 {
		return bson.M{}
	}
	return bson.M{"open_time": rng}
}

// classify maps driver-level connectivity failures onto
// model.ErrStorageUnavailable so callers can translate them to 503s.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return err
}
