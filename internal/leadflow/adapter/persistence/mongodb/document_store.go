// Package mongodb is the persistent DocumentStore backed by a MongoDB database.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"leadflow/internal/leadflow/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocumentStore implements repository.DocumentStore on a *mongo.Database.
type DocumentStore struct {
	client *mongo.Client
	db     *mongo.Database

	// referenced records every collection touched through this store, so
	// ListCollectionNames includes collections MongoDB has not created yet.
	mu         sync.Mutex
	referenced map[string]struct{}
}

var _ repository.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore wraps an already connected database.
func NewDocumentStore(client *mongo.Client, db *mongo.Database) *DocumentStore {
	return &DocumentStore{
		client:     client,
		db:         db,
		referenced: make(map[string]struct{}),
	}
}

// Connect dials uri, probes the server once within timeout and returns a
// store on databaseName. The client is disconnected again if the probe fails.
func Connect(ctx context.Context, uri, databaseName string, timeout time.Duration) (*DocumentStore, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return NewDocumentStore(client, client.Database(databaseName)), nil
}

func (s *DocumentStore) collection(name string) (*mongo.Collection, error) {
	if name == "" {
		return nil, repository.ErrInvalidCollection
	}
	s.mu.Lock()
	s.referenced[name] = struct{}{}
	s.mu.Unlock()
	return s.db.Collection(name), nil
}

// Insert stores doc, assigning a fresh ObjectID unless one is present.
func (s *DocumentStore) Insert(ctx context.Context, collectionName string, doc repository.Document) (string, error) {
	col, err := s.collection(collectionName)
	if err != nil {
		return "", err
	}

	toInsert := make(bson.M, len(doc)+1)
	for k, v := range doc {
		toInsert[k] = v
	}

	var id primitive.ObjectID
	switch v := toInsert[repository.IDField].(type) {
	case nil:
		id = primitive.NewObjectID()
		toInsert[repository.IDField] = id
	case primitive.ObjectID:
		id = v
	default:
		return "", fmt.Errorf("%w: got %T", repository.ErrUnsupportedIDValue, v)
	}

	if _, err := col.InsertOne(ctx, toInsert); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%w: %s", repository.ErrDuplicateID, id.Hex())
		}
		return "", fmt.Errorf("insert into %s: %w", collectionName, err)
	}
	return id.Hex(), nil
}

// FindOne returns the first document in natural order that matches filter.
func (s *DocumentStore) FindOne(ctx context.Context, collectionName string, filter repository.Filter) (repository.Document, error) {
	col, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}

	var out bson.M
	if err := col.FindOne(ctx, toMongoFilter(filter)).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNoDocuments
		}
		return nil, fmt.Errorf("find one in %s: %w", collectionName, err)
	}
	return repository.Document(out), nil
}

// FindMany returns every matching document in natural order.
func (s *DocumentStore) FindMany(ctx context.Context, collectionName string, filter repository.Filter) ([]repository.Document, error) {
	col, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}

	cursor, err := col.Find(ctx, toMongoFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collectionName, err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s cursor: %w", collectionName, err)
	}

	results := make([]repository.Document, 0, len(raw))
	for _, doc := range raw {
		results = append(results, repository.Document(doc))
	}
	return results, nil
}

// UpdateOne translates the update into $set/$push on the first match.
func (s *DocumentStore) UpdateOne(ctx context.Context, collectionName string, filter repository.Filter, update repository.Update) (bool, error) {
	if err := update.Validate(); err != nil {
		return false, err
	}
	col, err := s.collection(collectionName)
	if err != nil {
		return false, err
	}

	if update.IsEmpty() {
		err := col.FindOne(ctx, toMongoFilter(filter)).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("find one in %s: %w", collectionName, err)
		}
		return true, nil
	}

	doc := bson.M{}
	if len(update.Set) > 0 {
		doc["$set"] = bson.M(update.Set)
	}
	if len(update.Push) > 0 {
		doc["$push"] = bson.M(update.Push)
	}

	res, err := col.UpdateOne(ctx, toMongoFilter(filter), doc)
	if err != nil {
		var writeErr mongo.WriteException
		if errors.As(err, &writeErr) {
			for _, we := range writeErr.WriteErrors {
				// 2 is BadValue, 14 is TypeMismatch: both mean $push hit a non-array.
				if we.Code == 2 || we.Code == 14 {
					return false, fmt.Errorf("%w: %s", repository.ErrNotArray, we.Message)
				}
			}
		}
		return false, fmt.Errorf("update one in %s: %w", collectionName, err)
	}
	return res.MatchedCount > 0, nil
}

// ListCollectionNames merges the server's collection list with every
// collection referenced through this store.
func (s *DocumentStore) ListCollectionNames(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	s.mu.Lock()
	for n := range s.referenced {
		if _, ok := seen[n]; !ok {
			names = append(names, n)
			seen[n] = struct{}{}
		}
	}
	s.mu.Unlock()

	sort.Strings(names)
	return names, nil
}

// Ping checks the primary is reachable.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *DocumentStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DatabaseName is the name of the backing database.
func (s *DocumentStore) DatabaseName() string {
	return s.db.Name()
}

// toMongoFilter renders a structured filter as a MongoDB query document.
func toMongoFilter(filter repository.Filter) bson.M {
	out := make(bson.M, len(filter))
	for field, cond := range filter {
		switch {
		case cond.IsMissing():
			// {field: null} matches both absent and null fields.
			out[field] = nil
		case cond.IsOneOf():
			values := cond.Values()
			if values == nil {
				values = []interface{}{}
			}
			out[field] = bson.M{"$in": values}
		default:
			out[field] = cond.Value()
		}
	}
	return out
}

// DropDatabase removes the backing database. Used by tests to clean up.
func (s *DocumentStore) DropDatabase(ctx context.Context) error {
	return s.db.Drop(ctx)
}
