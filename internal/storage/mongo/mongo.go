// Package mongostorage implements storage.Backend on MongoDB using the
// collection layout of the original dashboard store: workers and predictions
// documents tagged with mine_name.
package mongostorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/pkg/core"
)

const (
	workersCollection     = "workers"
	predictionsCollection = "predictions"
)

// Backend stores workers and history in MongoDB.
type Backend struct {
	cfg    config.MongoConfig
	logger *slog.Logger

	client   *mongo.Client
	database *mongo.Database
}

// New creates a MongoDB backend. The connection is opened by Init.
func New(cfg config.MongoConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Backend{cfg: cfg, logger: logger}
}

// Init connects, pings and creates indexes.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(b.cfg.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}

	b.client = client
	b.database = client.Database(b.cfg.Database)

	if err = b.createIndexes(ctx); err != nil {
		return err
	}
	b.logger.Info("Connected to MongoDB", "database", b.cfg.Database)
	return nil
}

func (b *Backend) createIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	_, err := b.collection(workersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "mine_name", Value: 1}, {Key: "id", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return fmt.Errorf("creating worker index: %w", err)
	}

	_, err = b.collection(predictionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "mine_name", Value: 1}, {Key: "id", Value: 1}},
			Options: unique,
		},
		{
			Keys: bson.D{{Key: "mine_name", Value: 1}, {Key: "timestamp", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("creating prediction indexes: %w", err)
	}
	return nil
}

// Close disconnects the client. Safe before Init.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
	defer cancel()
	return b.client.Disconnect(ctx)
}

func (b *Backend) collection(name string) *mongo.Collection {
	return b.database.Collection(name)
}

// SaveWorker inserts or replaces a worker.
func (b *Backend) SaveWorker(ctx context.Context, site string, w core.Worker) error {
	doc := toWorkerDoc(site, w)
	_, err := b.collection(workersCollection).ReplaceOne(ctx,
		bson.M{"mine_name": site, "id": w.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving worker %q: %w", w.ID, err)
	}
	return nil
}

// DeleteWorker removes a worker.
func (b *Backend) DeleteWorker(ctx context.Context, site, id string) error {
	res, err := b.collection(workersCollection).DeleteOne(ctx, bson.M{"mine_name": site, "id": id})
	if err != nil {
		return fmt.Errorf("deleting worker %q: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("worker %q: %w", id, core.ErrNotFound)
	}
	return nil
}

// ListWorkers returns the roster of a site sorted by id.
func (b *Backend) ListWorkers(ctx context.Context, site string) ([]core.Worker, error) {
	cursor, err := b.collection(workersCollection).Find(ctx,
		bson.M{"mine_name": site}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing workers: %w", err)
	}
	var docs []workerDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding workers: %w", err)
	}
	out := make([]core.Worker, len(docs))
	for i, d := range docs {
		out[i] = d.toCore()
	}
	return out, nil
}

// AppendHistory stores records. A record whose id already exists for the site is replaced.
func (b *Backend) AppendHistory(ctx context.Context, site string, records ...core.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]predictionDoc, len(records))
	for i, r := range records {
		docs[i] = toPredictionDoc(site, r)
	}
	return b.upsertPredictions(ctx, docs)
}

// RecordPrediction stores a predictor result with its inputs.
func (b *Backend) RecordPrediction(ctx context.Context, site string, r core.HistoryRecord, in core.GeotechnicalInput, p core.Prediction) error {
	doc := toPredictionDoc(site, r)
	doc.Alert = p.Alert
	doc.Confidence = p.Confidence
	doc.Probabilities = p.Probabilities
	doc.Inputs = &in
	return b.upsertPredictions(ctx, []predictionDoc{doc})
}

func (b *Backend) upsertPredictions(ctx context.Context, docs []predictionDoc) error {
	models := make([]mongo.WriteModel, len(docs))
	for i, d := range docs {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"mine_name": d.MineName, "id": d.ID}).
			SetReplacement(d).
			SetUpsert(true)
	}
	if _, err := b.collection(predictionsCollection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// DeleteHistory removes one record.
func (b *Backend) DeleteHistory(ctx context.Context, site, id string) error {
	res, err := b.collection(predictionsCollection).DeleteOne(ctx, bson.M{"mine_name": site, "id": id})
	if err != nil {
		return fmt.Errorf("deleting history record %q: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("history record %q: %w", id, core.ErrNotFound)
	}
	return nil
}

// ClearHistory removes every record of a site.
func (b *Backend) ClearHistory(ctx context.Context, site string) (int64, error) {
	res, err := b.collection(predictionsCollection).DeleteMany(ctx, bson.M{"mine_name": site})
	if err != nil {
		return 0, fmt.Errorf("clearing history: %w", err)
	}
	return res.DeletedCount, nil
}

// ListHistory returns the most recent limit records, oldest first.
func (b *Backend) ListHistory(ctx context.Context, site string, limit int) ([]core.HistoryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := b.collection(predictionsCollection).Find(ctx, bson.M{"mine_name": site}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	var docs []predictionDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return newestFirstToRecords(docs), nil
}

// Prediction returns the stored document of one record, including predictor inputs.
func (b *Backend) Prediction(ctx context.Context, site, id string) (core.HistoryRecord, *core.GeotechnicalInput, error) {
	var doc predictionDoc
	err := b.collection(predictionsCollection).FindOne(ctx, bson.M{"mine_name": site, "id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.HistoryRecord{}, nil, fmt.Errorf("history record %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.HistoryRecord{}, nil, err
	}
	return doc.toCore(), doc.Inputs, nil
}

// ListSites returns every site with stored workers or history.
func (b *Backend) ListSites(ctx context.Context) ([]string, error) {
	var all []any
	for _, name := range []string{workersCollection, predictionsCollection} {
		values, err := b.collection(name).Distinct(ctx, "mine_name", bson.D{})
		if err != nil {
			return nil, fmt.Errorf("listing sites: %w", err)
		}
		all = append(all, values...)
	}
	return distinctSites(all), nil
}

func distinctSites(values []any) []string {
	seen := make(map[string]struct{}, len(values))
	sites := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		sites = append(sites, s)
	}
	sort.Strings(sites)
	return sites
}
