package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

type CollectionName string

const (
	CollectionNameUsers            CollectionName = "users"
	CollectionNameAiUsageEvents    CollectionName = "ai_usage_events"
	CollectionNameNamespaceMembers CollectionName = "namespace_members"
)

type (
	Pipeline = mongo.Pipeline
	Cursor   = mongo.Cursor
)

var ErrNoDocuments = mongo.ErrNoDocuments

type Instance interface {
	Collection(CollectionName) *mongo.Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type SetupOptions struct {
	URI    string
	DB     string
	Direct bool
}

type mongoInst struct {
	client *mongo.Client
	db     *mongo.Database
}

func Setup(ctx context.Context, opt SetupOptions) (Instance, error) {
	clientOptions := options.Client().ApplyURI(opt.URI).SetDirect(opt.Direct)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	zap.S().Infow("mongo, ok", "db", opt.DB)

	return &mongoInst{
		client: client,
		db:     client.Database(opt.DB),
	}, nil
}

// WrapDatabase builds an Instance around an existing database handle.
func WrapDatabase(db *mongo.Database) Instance {
	return &mongoInst{
		client: db.Client(),
		db:     db,
	}
}

func (i *mongoInst) Collection(name CollectionName) *mongo.Collection {
	return i.db.Collection(string(name))
}

func (i *mongoInst) Ping(ctx context.Context) error {
	return i.client.Ping(ctx, readpref.Primary())
}

func (i *mongoInst) Close(ctx context.Context) error {
	return i.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the query layer relies on.
func EnsureIndexes(ctx context.Context, inst Instance) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := inst.Collection(CollectionNameAiUsageEvents).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "namespace_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "namespace_id", Value: 1}, {Key: "event", Value: 1}, {Key: "timestamp", Value: -1}}},
	}); err != nil {
		return err
	}

	if _, err := inst.Collection(CollectionNameNamespaceMembers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "namespace_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}

	return nil
}
