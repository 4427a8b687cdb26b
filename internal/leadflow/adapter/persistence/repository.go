package persistence

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/domain/repository"
	"leadflow/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// Clock returns the current time. Stored timestamps have millisecond
// precision, so clocks should not carry more.
type Clock func() time.Time

// UTCClock is the production clock.
func UTCClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// DocumentRepository turns typed records into documents and back on top of
// whichever DocumentStore was selected at startup.
type DocumentRepository struct {
	store repository.DocumentStore
	clock Clock
}

var _ repository.LeadflowRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a repository over store. A nil clock means UTCClock.
func NewDocumentRepository(store repository.DocumentStore, clock Clock) *DocumentRepository {
	if clock == nil {
		clock = UTCClock
	}
	return &DocumentRepository{store: store, clock: clock}
}

// Store exposes the underlying store.
func (r *DocumentRepository) Store() repository.DocumentStore { return r.store }

// Now returns the repository's current time.
func (r *DocumentRepository) Now() time.Time { return r.clock() }

// CreateDocument inserts record into collection. created_at is filled in
// when absent or zero and updated_at is always set to now.
func (r *DocumentRepository) CreateDocument(ctx context.Context, collection string, record interface{}) (string, error) {
	doc, err := ToDocument(record)
	if err != nil {
		return "", errors.NewValidationError("record cannot be stored").WithCause(err)
	}

	now := r.clock()
	if isZeroTime(doc[fieldCreatedAt]) {
		doc[fieldCreatedAt] = now
	}
	doc[fieldUpdatedAt] = now

	id, err := r.store.Insert(ctx, collection, doc)
	if err != nil {
		if stdErrors.Is(err, repository.ErrDuplicateID) {
			return "", errors.NewConflictError("document already exists").WithCause(err)
		}
		return "", errors.WrapError(err, fmt.Sprintf("failed to insert into %s", collection))
	}
	return id, nil
}

// GetDocuments returns the matching documents, at most limit of them when limit > 0.
func (r *DocumentRepository) GetDocuments(ctx context.Context, collection string, filter repository.Filter, limit int) ([]repository.Document, error) {
	docs, err := r.store.FindMany(ctx, collection, filter)
	if err != nil {
		return nil, errors.WrapError(err, fmt.Sprintf("failed to query %s", collection))
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// GetProject loads a project by id hex.
func (r *DocumentRepository) GetProject(ctx context.Context, id string) (*model.Project, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return findOne[model.Project](ctx, r.store, model.CollectionProjects, repository.ByID(oid), "Project", errors.ErrProjectNotFound)
}

// FindProjectByName returns the first project called name.
func (r *DocumentRepository) FindProjectByName(ctx context.Context, name string) (*model.Project, error) {
	filter := repository.Filter{"name": repository.Eq(name)}
	return findOne[model.Project](ctx, r.store, model.CollectionProjects, filter, "Project", errors.ErrProjectNotFound)
}

func (r *DocumentRepository) ListProjects(ctx context.Context) ([]*model.Project, error) {
	return findMany[model.Project](ctx, r.store, model.CollectionProjects, repository.Filter{}, 0)
}

// GetLead loads a lead by id hex.
func (r *DocumentRepository) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return findOne[model.Lead](ctx, r.store, model.CollectionLeads, repository.ByID(oid), "Lead", errors.ErrLeadNotFound)
}

func leadFilter(q repository.LeadQuery) repository.Filter {
	f := repository.Filter{}
	if q.ProjectID != "" {
		f["project_id"] = repository.Eq(q.ProjectID)
	}
	if q.AssignedTo != "" {
		f["assigned_to"] = repository.Eq(q.AssignedTo)
	}
	if q.Status != "" {
		f["status"] = repository.Eq(string(q.Status))
	}
	return f
}

func (r *DocumentRepository) ListLeads(ctx context.Context, q repository.LeadQuery) ([]*model.Lead, error) {
	return findMany[model.Lead](ctx, r.store, model.CollectionLeads, leadFilter(q), q.Limit)
}

// GetUser loads a user by id hex.
func (r *DocumentRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return findOne[model.User](ctx, r.store, model.CollectionUsers, repository.ByID(oid), "User", errors.ErrUserNotFound)
}

// ListUsersByIDs returns the users whose id hex is in ids. Malformed ids are skipped.
func (r *DocumentRepository) ListUsersByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	oids := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []*model.User{}, nil
	}
	filter := repository.Filter{repository.IDField: repository.In(oids...)}
	return findMany[model.User](ctx, r.store, model.CollectionUsers, filter, 0)
}

func (r *DocumentRepository) UpdateLead(ctx context.Context, id primitive.ObjectID, update repository.Update) (bool, error) {
	return r.update(ctx, model.CollectionLeads, id, update)
}

func (r *DocumentRepository) UpdateProject(ctx context.Context, id primitive.ObjectID, update repository.Update) (bool, error) {
	return r.update(ctx, model.CollectionProjects, id, update)
}

func (r *DocumentRepository) UpdateUser(ctx context.Context, id primitive.ObjectID, update repository.Update) (bool, error) {
	return r.update(ctx, model.CollectionUsers, id, update)
}

func (r *DocumentRepository) update(ctx context.Context, collection string, id primitive.ObjectID, update repository.Update) (bool, error) {
	matched, err := r.store.UpdateOne(ctx, collection, repository.ByID(id), update)
	if err != nil {
		return false, errors.WrapError(err, fmt.Sprintf("failed to update %s", collection))
	}
	return matched, nil
}

// ParseID converts an id hex string, reporting a validation error when malformed.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errors.NewInvalidIDError(id)
	}
	return oid, nil
}

// ToDocument converts a record (struct, map or Document) into a Document by
// way of BSON, honoring bson struct tags.
func ToDocument(record interface{}) (repository.Document, error) {
	if record == nil {
		return nil, fmt.Errorf("nil record")
	}
	raw, err := bson.Marshal(record)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return repository.Document(doc), nil
}

// DecodeDocument converts a stored document into a typed record.
func DecodeDocument[T any](doc repository.Document) (*T, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := new(T)
	if err := bson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func findOne[T any](ctx context.Context, store repository.DocumentStore, collection string, filter repository.Filter, resource string, notFound error) (*T, error) {
	doc, err := store.FindOne(ctx, collection, filter)
	if err != nil {
		if stdErrors.Is(err, repository.ErrNoDocuments) {
			return nil, errors.NewNotFoundError(resource).WithCause(notFound)
		}
		return nil, errors.WrapError(err, fmt.Sprintf("failed to read %s", collection))
	}
	out, err := DecodeDocument[T](doc)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("stored %s is malformed", collection)).WithCause(err)
	}
	return out, nil
}

func findMany[T any](ctx context.Context, store repository.DocumentStore, collection string, filter repository.Filter, limit int) ([]*T, error) {
	docs, err := store.FindMany(ctx, collection, filter)
	if err != nil {
		return nil, errors.WrapError(err, fmt.Sprintf("failed to query %s", collection))
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		rec, err := DecodeDocument[T](doc)
		if err != nil {
			return nil, errors.NewInternalError(fmt.Sprintf("stored %s is malformed", collection)).WithCause(err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func isZeroTime(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case primitive.DateTime:
		return t.Time().IsZero()
	case time.Time:
		return t.IsZero()
	}
	return false
}
