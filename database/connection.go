package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sirupsen/logrus"
)

var (
	client   *mongo.Client
	database *mongo.Database
)

// Connect establishes the MongoDB connection and creates indexes.
func Connect(mongoURI, dbName string) error {
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	if dbName == "" {
		dbName = "codrive"
	}

	clientOptions := options.Client().
		ApplyURI(mongoURI).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetSocketTimeout(10 * time.Second).
		SetConnectTimeout(10 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	client, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	database = client.Database(dbName)

	if err = createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %v", err)
	}

	logrus.Infof("Connected to MongoDB database: %s", dbName)
	return nil
}

// Disconnect closes the MongoDB connection.
func Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if client != nil {
		if err := client.Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to disconnect from MongoDB: %v", err)
		}
		logrus.Info("Disconnected from MongoDB")
	}

	return nil
}

// GetClient returns the MongoDB client.
func GetClient() *mongo.Client {
	return client
}

// GetDatabase returns the MongoDB database.
func GetDatabase() *mongo.Database {
	return database
}

// GetCollection returns a MongoDB collection.
func GetCollection(collectionName string) *mongo.Collection {
	if database == nil {
		panic(fmt.Sprintf("database not initialized when trying to get collection: %s", collectionName))
	}
	return database.Collection(collectionName)
}

// Ping checks the database connection.
func Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if client == nil {
		return fmt.Errorf("database client not initialized")
	}

	return client.Ping(ctx, readpref.Primary())
}

func createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	filesIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "parent_id", Value: 1}}},
		{Keys: bson.D{{Key: "parent_id", Value: 1}, {Key: "is_trashed", Value: 1}}},
		{
			Keys: bson.D{{Key: "remote_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(
				bson.M{"remote_id": bson.M{"$type": "string"}},
			),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_trashed", Value: 1}}},
	}
	if _, err := GetCollection(FilesCollection).Indexes().CreateMany(ctx, filesIndexes); err != nil {
		return fmt.Errorf("files indexes: %v", err)
	}

	permIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "file_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "permission", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}
	if _, err := GetCollection(FilePermissionsCollection).Indexes().CreateMany(ctx, permIndexes); err != nil {
		return fmt.Errorf("file_permissions indexes: %v", err)
	}

	historyIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "file_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "action", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	}
	if _, err := GetCollection(FileHistoryCollection).Indexes().CreateMany(ctx, historyIndexes); err != nil {
		return fmt.Errorf("file_history indexes: %v", err)
	}

	notifyIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := GetCollection(NotificationsCollection).Indexes().CreateMany(ctx, notifyIndexes); err != nil {
		return fmt.Errorf("notifications indexes: %v", err)
	}

	starIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "file_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := GetCollection(StarsCollection).Indexes().CreateMany(ctx, starIndexes); err != nil {
		return fmt.Errorf("stars indexes: %v", err)
	}

	syncIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := GetCollection(SyncStateCollection).Indexes().CreateMany(ctx, syncIndexes); err != nil {
		return fmt.Errorf("sync_state indexes: %v", err)
	}

	return nil
}
