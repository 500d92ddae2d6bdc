package auth

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoUserStore struct {
	cli  *mongo.Client
	coll *mongo.Collection
}

func NewMongoUserStore(ctx context.Context, uri, db, coll string) (*MongoUserStore, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := cli.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}

	c := cli.Database(db).Collection(coll)
	_, _ = c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &MongoUserStore{cli: cli, coll: c}, nil
}

func (s *MongoUserStore) Add(u *User) error {
	doc := bson.M{
		"username":  u.Username,
		"pass_hash": u.PassHash,
	}
	_, err := s.coll.InsertOne(context.Background(), doc)
	if wex, ok := err.(mongo.WriteException); ok {
		for _, we := range wex.WriteErrors {
			if we.Code == 11000 { // duplicate key
				return ErrUserExists
			}
		}
	}
	return err
}

func (s *MongoUserStore) FindByUsername(username string) (*User, error) {
	var doc struct {
		Username string `bson:"username"`
		PassHash string `bson:"pass_hash"`
	}
	err := s.coll.FindOne(context.Background(), bson.M{"username": username}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &User{Username: doc.Username, PassHash: doc.PassHash}, nil
}

func (s *MongoUserStore) UpdatePassword(username, newHash string) error {
	res, err := s.coll.UpdateOne(
		context.Background(),
		bson.M{"username": username},
		bson.M{"$set": bson.M{"pass_hash": newHash}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}
