// Package memory is the in-process DocumentStore used when MongoDB is not
// configured or not reachable at startup.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"leadflow/internal/leadflow/domain/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentStore keeps every collection in memory. Each operation holds the
// collection lock for its whole duration, so a single call is atomic with
// respect to any other call on the same collection.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
	names       []string
}

type collection struct {
	mu    sync.RWMutex
	order []primitive.ObjectID
	docs  map[primitive.ObjectID]repository.Document
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string]*collection),
	}
}

var _ repository.DocumentStore = (*DocumentStore)(nil)

// collection returns the named collection, creating it on first reference.
func (s *DocumentStore) collection(name string) (*collection, error) {
	if name == "" {
		return nil, repository.ErrInvalidCollection
	}

	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok = s.collections[name]; ok {
		return col, nil
	}
	col = &collection{docs: make(map[primitive.ObjectID]repository.Document)}
	s.collections[name] = col
	s.names = append(s.names, name)
	return col, nil
}

// Insert stores a normalized copy of doc under a fresh ObjectID, or under the
// ObjectID already present in doc.
func (s *DocumentStore) Insert(ctx context.Context, collectionName string, doc repository.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	col, err := s.collection(collectionName)
	if err != nil {
		return "", err
	}

	stored, err := normalizeDocument(doc)
	if err != nil {
		return "", err
	}

	var id primitive.ObjectID
	switch v := stored[repository.IDField].(type) {
	case nil:
		id = primitive.NewObjectID()
		stored[repository.IDField] = id
	case primitive.ObjectID:
		id = v
	default:
		return "", fmt.Errorf("%w: got %T", repository.ErrUnsupportedIDValue, v)
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	if _, exists := col.docs[id]; exists {
		return "", fmt.Errorf("%w: %s", repository.ErrDuplicateID, id.Hex())
	}
	col.docs[id] = stored
	col.order = append(col.order, id)
	return id.Hex(), nil
}

// FindOne returns a copy of the first document, in insertion order, matching filter.
func (s *DocumentStore) FindOne(ctx context.Context, collectionName string, filter repository.Filter) (repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	col, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}
	nf, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	col.mu.RLock()
	defer col.mu.RUnlock()
	_, doc := col.first(nf)
	if doc == nil {
		return nil, repository.ErrNoDocuments
	}
	return normalizeDocument(doc)
}

// FindMany returns copies of every matching document in insertion order.
func (s *DocumentStore) FindMany(ctx context.Context, collectionName string, filter repository.Filter) ([]repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	col, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}
	nf, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	col.mu.RLock()
	defer col.mu.RUnlock()
	results := make([]repository.Document, 0)
	for _, id := range col.order {
		doc := col.docs[id]
		if !nf.matches(doc) {
			continue
		}
		cp, err := normalizeDocument(doc)
		if err != nil {
			return nil, err
		}
		results = append(results, cp)
	}
	return results, nil
}

// UpdateOne applies the set and push operators to the first matching document.
// The change is computed on a copy and swapped in only if both operators
// succeed, so a failing push leaves the document untouched.
func (s *DocumentStore) UpdateOne(ctx context.Context, collectionName string, filter repository.Filter, update repository.Update) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := update.Validate(); err != nil {
		return false, err
	}
	col, err := s.collection(collectionName)
	if err != nil {
		return false, err
	}
	nf, err := normalizeFilter(filter)
	if err != nil {
		return false, err
	}
	set, err := normalizeDocument(repository.Document(update.Set))
	if err != nil {
		return false, err
	}
	push, err := normalizeDocument(repository.Document(update.Push))
	if err != nil {
		return false, err
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	id, current := col.first(nf)
	if current == nil {
		return false, nil
	}
	if update.IsEmpty() {
		return true, nil
	}

	next := make(repository.Document, len(current)+len(set))
	for k, v := range current {
		next[k] = v
	}
	for k, v := range set {
		next[k] = v
	}
	for k, v := range push {
		existing, present := next[k]
		if !present {
			next[k] = primitive.A{v}
			continue
		}
		arr, ok := existing.(primitive.A)
		if !ok {
			return false, fmt.Errorf("%w: field %q holds %T", repository.ErrNotArray, k, existing)
		}
		grown := make(primitive.A, len(arr), len(arr)+1)
		copy(grown, arr)
		next[k] = append(grown, v)
	}
	col.docs[id] = next
	return true, nil
}

// ListCollectionNames returns every referenced collection, sorted. A store
// that was never touched yields an empty, non-nil slice.
func (s *DocumentStore) ListCollectionNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	names := make([]string, len(s.names))
	copy(names, s.names)
	s.mu.RUnlock()

	sort.Strings(names)
	return names, nil
}

// Ping always succeeds.
func (s *DocumentStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op; the data lives as long as the process.
func (s *DocumentStore) Close(ctx context.Context) error { return nil }

// first must be called with col.mu held.
func (col *collection) first(nf normalizedFilter) (primitive.ObjectID, repository.Document) {
	for _, id := range col.order {
		if doc := col.docs[id]; nf.matches(doc) {
			return id, doc
		}
	}
	return primitive.NilObjectID, nil
}
