package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	documentsCollection = "documents"
	sessionsCollection  = "chatsessions"
)

// MongoStore persists records in MongoDB.
type MongoStore struct {
	client    *mongo.Client
	documents *mongo.Collection
	sessions  *mongo.Collection
	logger    *slog.Logger
}

// NewMongoStore connects to uri and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:    client,
		documents: db.Collection(documentsCollection),
		sessions:  db.Collection(sessionsCollection),
		logger:    logger,
	}

	_, err = store.documents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		logger.Warn("Failed to create documents index", "error", err)
	}

	return store, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CreateDocument implements DocumentStore.
func (s *MongoStore) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.Status = StatusProcessing

	if _, err := s.documents.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument implements DocumentStore.
func (s *MongoStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &doc, nil
}

// ListDocuments implements DocumentStore.
func (s *MongoStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	cursor, err := s.documents.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

// Finalize implements DocumentStore. The status filter makes the transition
// atomic: only one caller can move a document out of processing.
func (s *MongoStore) Finalize(ctx context.Context, id string, outcome Outcome) error {
	update := bson.M{"$set": bson.M{
		"status":      outcome.Status(),
		"error":       errorText(outcome.Err),
		"chunksCount": outcome.ChunksCount,
		"pageCount":   outcome.PageCount,
		"wordCount":   outcome.WordCount,
		"title":       outcome.Title,
		"updatedAt":   time.Now().UTC(),
	}}

	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": id, "status": StatusProcessing}, update)
	if err != nil {
		return fmt.Errorf("finalize document: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	if _, err := s.GetDocument(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// DeleteDocument implements DocumentStore.
func (s *MongoStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.documents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// CreateSession implements SessionStore.
func (s *MongoStore) CreateSession(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Messages == nil {
		session.Messages = []Message{}
	}
	if session.DocumentIDs == nil {
		session.DocumentIDs = []string{}
	}

	if _, err := s.sessions.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession implements SessionStore.
func (s *MongoStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// ListSessions implements SessionStore.
func (s *MongoStore) ListSessions(ctx context.Context) ([]*Session, error) {
	cursor, err := s.sessions.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

// AppendMessages implements SessionStore.
func (s *MongoStore) AppendMessages(ctx context.Context, id string, msgs ...Message) error {
	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": msgs}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := s.sessions.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}
