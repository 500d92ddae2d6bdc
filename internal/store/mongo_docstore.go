package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDocumentStore persists documents in one Mongo collection per logical
// collection name. Field values that are encrypted envelopes arrive here as
// plain maps and are stored as BSON subdocuments.
type MongoDocumentStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoDocumentStore(ctx context.Context, uri, dbName string) (*MongoDocumentStore, error) {
	if uri == "" {
		return nil, errors.New("store: mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	// Verify connection quickly
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return &MongoDocumentStore{client: cli, db: cli.Database(dbName)}, nil
}

func (m *MongoDocumentStore) Put(ctx context.Context, collection, id string, doc map[string]any) error {
	if id == "" {
		return errors.New("store: empty id")
	}
	_, err := m.db.Collection(collection).UpdateByID(
		ctx,
		id,
		bson.M{
			"$set": bson.M{
				"doc":       doc,
				"updatedAt": time.Now(),
			},
			"$setOnInsert": bson.M{
				"createdAt": time.Now(),
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *MongoDocumentStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if id == "" {
		return nil, errors.New("store: empty id")
	}
	var out struct {
		Doc map[string]any `bson:"doc"`
	}
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	return out.Doc, err
}

func (m *MongoDocumentStore) Delete(ctx context.Context, collection, id string) error {
	if id == "" {
		return errors.New("store: empty id")
	}
	_, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (m *MongoDocumentStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
