package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"newsfeed/pkg/domain"
)

const (
	itemsCollection   = "content_items"
	sourcesCollection = "sources"
)

// MongoStore keeps content items and sources in MongoDB. A unique index on
// content_address is the dedup point.
type MongoStore struct {
	mongoClient *mongo.Client
	database    *mongo.Database
	items       *mongo.Collection
	sources     *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore creates a new store client. Errors surface from Connect.
func NewMongoStore(connectionString, databaseName string) *MongoStore {
	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		return &MongoStore{}
	}

	database := mongoClient.Database(databaseName)
	return &MongoStore{
		mongoClient: mongoClient,
		database:    database,
		items:       database.Collection(itemsCollection),
		sources:     database.Collection(sourcesCollection),
	}
}

// Connect verifies the connection and ensures indexes exist.
func (s *MongoStore) Connect(ctx context.Context) error {
	if s.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	if err := s.mongoClient.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return s.EnsureIndexes(ctx)
}

// Close closes the MongoDB connection
func (s *MongoStore) Close(ctx context.Context) error {
	if s.mongoClient == nil {
		return nil
	}
	return s.mongoClient.Disconnect(ctx)
}

// EnsureIndexes creates the unique content-address index and the read-path indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if s.items == nil {
		return fmt.Errorf("collection not initialized")
	}
	_, err := s.items.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "content_address", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("content_address_unique"),
		},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "score", Value: -1}}},
		{Keys: bson.D{{Key: "ingested_at", Value: -1}}},
		{Keys: bson.D{{Key: "scored_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertIfAbsent(ctx context.Context, item *domain.ContentItem) (bool, error) {
	if s.items == nil {
		return false, fmt.Errorf("collection not initialized")
	}
	if item == nil || item.ContentAddress == "" {
		return false, fmt.Errorf("insert item: content address is required")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}

	_, err := s.items.InsertOne(ctx, item)
	if err == nil {
		return true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), "content_address") {
			return false, nil
		}
		return false, fmt.Errorf("%w: insert %s: %v", ErrInvariantViolation, item.ContentAddress, err)
	}
	return false, fmt.Errorf("insert item: %w", err)
}

func (s *MongoStore) GetItem(ctx context.Context, id string) (domain.ContentItem, error) {
	if s.items == nil {
		return domain.ContentItem{}, fmt.Errorf("collection not initialized")
	}

	var item domain.ContentItem
	err := s.items.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ContentItem{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

func (s *MongoStore) ListItems(ctx context.Context, q domain.ItemQuery) ([]domain.ContentItem, error) {
	filter := bson.M{}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	ingested := bson.M{}
	if !q.Since.IsZero() {
		ingested["$gte"] = q.Since.UTC()
	}
	if !q.Until.IsZero() {
		ingested["$lt"] = q.Until.UTC()
	}
	if len(ingested) > 0 {
		filter["ingested_at"] = ingested
	}

	sort := bson.D{{Key: "score", Value: -1}, {Key: "ingested_at", Value: -1}, {Key: "_id", Value: 1}}
	if q.Sort == domain.SortNewest {
		sort = bson.D{{Key: "ingested_at", Value: -1}, {Key: "_id", Value: 1}}
	}
	opts := options.Find().SetSort(sort).SetLimit(int64(normalizeLimit(q.Limit)))
	return s.findItems(ctx, filter, opts)
}

func (s *MongoStore) IncrementVotes(ctx context.Context, itemID string, delta int64) error {
	if s.items == nil {
		return fmt.Errorf("collection not initialized")
	}
	res, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID},
		bson.M{"$inc": bson.M{"vote_total": delta, "vote_count": 1}},
	)
	if err != nil {
		return fmt.Errorf("increment votes %s: %w", itemID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) GetVoteTotal(ctx context.Context, itemID string) (int64, error) {
	if s.items == nil {
		return 0, fmt.Errorf("collection not initialized")
	}

	var result struct {
		VoteTotal int64 `bson:"vote_total"`
	}
	opts := options.FindOne().SetProjection(bson.M{"vote_total": 1})
	err := s.items.FindOne(ctx, bson.M{"_id": itemID}, opts).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get vote total %s: %w", itemID, err)
	}
	return result.VoteTotal, nil
}

func (s *MongoStore) UpdateScore(ctx context.Context, itemID string, score float64, at time.Time) error {
	if s.items == nil {
		return fmt.Errorf("collection not initialized")
	}
	res, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID},
		bson.M{"$set": bson.M{"score": score, "scored_at": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update score %s: %w", itemID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) ListForRescore(ctx context.Context, before time.Time, limit int) ([]domain.ContentItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scored_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findItems(ctx, bson.M{"scored_at": bson.M{"$lt": before.UTC()}}, opts)
}

// AllItems fetches every content item, oldest first.
func (s *MongoStore) AllItems(ctx context.Context) ([]domain.ContentItem, error) {
	return s.findItems(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "ingested_at", Value: 1}}))
}

func (s *MongoStore) GetSource(ctx context.Context, id string) (domain.Source, error) {
	if s.sources == nil {
		return domain.Source{}, fmt.Errorf("collection not initialized")
	}

	var src domain.Source
	err := s.sources.FindOne(ctx, bson.M{"_id": id}).Decode(&src)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Source{}, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Source{}, fmt.Errorf("get source %s: %w", id, err)
	}
	return src, nil
}

func (s *MongoStore) UpsertSource(ctx context.Context, src domain.Source) error {
	if s.sources == nil {
		return fmt.Errorf("collection not initialized")
	}
	if src.ID == "" {
		return fmt.Errorf("upsert source: id is required")
	}

	update := bson.M{
		"$set": bson.M{
			"url":      src.URL,
			"interval": src.Interval,
			"category": src.Category,
		},
		"$setOnInsert": bson.M{"failure_count": 0},
	}
	_, err := s.sources.UpdateOne(ctx, bson.M{"_id": src.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", src.ID, err)
	}
	return nil
}

func (s *MongoStore) UpdateSourceValidators(ctx context.Context, id, etag, lastModified string, fetchedAt *time.Time, failureCount int) error {
	if s.sources == nil {
		return fmt.Errorf("collection not initialized")
	}

	set := bson.M{
		"etag":          etag,
		"last_modified": lastModified,
		"failure_count": failureCount,
	}
	if fetchedAt != nil {
		set["last_fetched_at"] = fetchedAt.UTC()
	}
	res, err := s.sources.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update source %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) findItems(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.ContentItem, error) {
	if s.items == nil {
		return nil, fmt.Errorf("collection not initialized")
	}

	cursor, err := s.items.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []domain.ContentItem
	for cursor.Next(ctx) {
		var item domain.ContentItem
		if err := cursor.Decode(&item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, item)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return items, nil
}
