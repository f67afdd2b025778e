package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/NewsHound/internal/types"
)

// MongoArticleStore writes articles to a MongoDB collection.
type MongoArticleStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	count      atomic.Int64
	logger     *slog.Logger
}

// NewMongoArticleStore connects, pings and ensures the unique source_url index.
func NewMongoArticleStore(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoArticleStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "source_url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("create index: %w", err)}
	}

	return &MongoArticleStore{
		client:     client,
		collection: coll,
		logger:     logger.With("component", "mongo_articles"),
	}, nil
}

func (s *MongoArticleStore) Name() string { return "mongodb" }

func (s *MongoArticleStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{"source_url": sourceURL}, options.Count().SetLimit(1))
	if err != nil {
		return false, &types.StorageError{Backend: "mongodb", Err: err}
	}
	return n > 0, nil
}

func (s *MongoArticleStore) Create(ctx context.Context, a *Article) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", types.ErrDuplicate
		}
		return "", &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("insert: %w", err)}
	}

	total := s.count.Add(1)
	s.logger.Debug("article stored in mongodb", "id", a.ID, "total", total)
	return a.ID, nil
}

func (s *MongoArticleStore) Close() error {
	s.logger.Info("mongodb storage closing", "created", s.count.Load())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
