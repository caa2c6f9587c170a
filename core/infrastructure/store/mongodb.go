package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/hyperterse/hypercluster/core/domain"
	"github.com/hyperterse/hypercluster/core/logger"
)

const defaultMongoDatabase = "hypercluster"

// MongoDBStore keeps products in the "products" collection of the database
// named in the connection string path (default "hypercluster").
type MongoDBStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoDBStore(connectionString string) (*MongoDBStore, error) {
	log := logger.New("store:mongodb")
	log.Debugf("Opening MongoDB connection")

	database, err := mongoDatabaseName(connectionString)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(mongoOptions.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Debugf("Testing connection with ping")
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Debugf("MongoDB connection opened successfully")
	return &MongoDBStore{
		client:     client,
		collection: client.Database(database).Collection("products"),
	}, nil
}

func mongoDatabaseName(connectionString string) (string, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return "", fmt.Errorf("failed to parse mongodb connection string: %w", err)
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name, nil
	}
	return defaultMongoDatabase, nil
}

func (s *MongoDBStore) GetAll(ctx context.Context) ([]domain.Product, error) {
	cursor, err := s.collection.Find(ctx, bson.D{}, mongoOptions.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	products := make([]domain.Product, 0)
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

func (s *MongoDBStore) Save(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	p := domain.Product{ID: ulid.Make().String(), Title: in.Title, Price: in.Price, Thumbnail: in.Thumbnail}
	if _, err := s.collection.InsertOne(ctx, p); err != nil {
		return domain.Product{}, fmt.Errorf("failed to insert product: %w", err)
	}
	return p, nil
}

func (s *MongoDBStore) GetByID(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (s *MongoDBStore) UpdateByID(ctx context.Context, id string, in domain.ProductInput) (domain.Product, error) {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: in.Title},
		{Key: "price", Value: in.Price},
		{Key: "thumbnail", Value: in.Thumbnail},
	}}}
	opts := mongoOptions.FindOneAndUpdate().SetReturnDocument(mongoOptions.After)

	var p domain.Product
	err := s.collection.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to update product: %w", err)
	}
	return p, nil
}

func (s *MongoDBStore) DeleteByID(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (s *MongoDBStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.New("store:mongodb").Debugf("Closing MongoDB connection")
	return s.client.Disconnect(ctx)
}
