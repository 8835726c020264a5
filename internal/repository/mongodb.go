package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/m2tx/chat_relay/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type exchangeDocument struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	Model          string    `bson:"model"`
	User           string    `bson:"user"`
	Assistant      string    `bson:"assistant"`
	CreatedAt      time.Time `bson:"created_at"`
}

// MongoTranscriptArchive implements TranscriptArchive using MongoDB.
type MongoTranscriptArchive struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoTranscriptArchive creates a new MongoTranscriptArchive.
// collectionName defaults to "transcripts" if empty.
func NewMongoTranscriptArchive(db *mongo.Database, collectionName string) *MongoTranscriptArchive {
	if collectionName == "" {
		collectionName = "transcripts"
	}
	return &MongoTranscriptArchive{
		collection: db.Collection(collectionName),
		now:        time.Now,
	}
}

// EnsureIndexes creates the conversation_id index used to browse an archive by conversation.
func (a *MongoTranscriptArchive) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("conversation_created"),
	})
	if err != nil {
		return fmt.Errorf("repository: create transcript index: %w", err)
	}

	return nil
}

func (a *MongoTranscriptArchive) Record(ctx context.Context, exchange model.Exchange) error {
	doc := exchangeDocument{
		ID:             uuid.NewString(),
		ConversationID: exchange.ConversationID,
		Model:          exchange.Model,
		User:           exchange.User,
		Assistant:      exchange.Assistant,
		CreatedAt:      a.now().UTC(),
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("repository: insert transcript for %q: %w", exchange.ConversationID, err)
	}

	return nil
}
