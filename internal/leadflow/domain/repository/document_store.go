package repository

import (
	"context"
	"errors"
	"fmt"
)

// IDField is the field every stored document is keyed by.
const IDField = "_id"

// Store errors shared by every backend.
var (
	ErrNoDocuments        = errors.New("no document matches the filter")
	ErrDuplicateID        = errors.New("document id already exists")
	ErrNotArray           = errors.New("push target is not an array")
	ErrConflictingUpdate  = errors.New("field appears in both set and push")
	ErrInvalidCollection  = errors.New("collection name cannot be empty")
	ErrUnsupportedIDValue = errors.New("document _id must be an ObjectID")
)

// Document is a schemaless record. Nested documents and arrays come back from
// every backend with the same BSON-decoded Go types.
type Document map[string]interface{}

// DocumentStore is the capability set shared by the persistent and in-memory
// backends. Both implementations must be observably identical.
type DocumentStore interface {
	// Insert stores a copy of doc and returns the hex id assigned to it.
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	// FindOne returns the first matching document or ErrNoDocuments.
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
	// FindMany returns independent copies of every matching document.
	FindMany(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// UpdateOne applies update to the first matching document. It reports
	// whether a document matched; no match is not an error.
	UpdateOne(ctx context.Context, collection string, filter Filter, update Update) (bool, error)
	// ListCollectionNames returns every collection referenced so far.
	ListCollectionNames(ctx context.Context) ([]string, error)
	// Ping checks the backend is usable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close(ctx context.Context) error
}

type conditionKind int

const (
	conditionEquals conditionKind = iota
	conditionOneOf
	conditionMissing
)

// Condition is the per-field part of a Filter: Equals, OneOf or Missing.
type Condition struct {
	kind   conditionKind
	value  interface{}
	values []interface{}
}

// Eq matches documents whose field equals v. Eq(nil) behaves like Missing.
func Eq(v interface{}) Condition {
	if v == nil {
		return Missing()
	}
	return Condition{kind: conditionEquals, value: v}
}

// In matches documents whose field equals any of vs. An empty set matches nothing.
func In(vs ...interface{}) Condition {
	return Condition{kind: conditionOneOf, values: append([]interface{}(nil), vs...)}
}

// Missing matches documents where the field is absent or null.
func Missing() Condition {
	return Condition{kind: conditionMissing}
}

// IsEquals reports whether c was built by Eq with a non-nil value.
func (c Condition) IsEquals() bool { return c.kind == conditionEquals }

// IsOneOf reports whether c was built by In.
func (c Condition) IsOneOf() bool { return c.kind == conditionOneOf }

// IsMissing reports whether c was built by Missing or Eq(nil).
func (c Condition) IsMissing() bool { return c.kind == conditionMissing }

// Value is the operand of an Equals condition.
func (c Condition) Value() interface{} { return c.value }

// Values is the candidate set of a OneOf condition.
func (c Condition) Values() []interface{} { return c.values }

func (c Condition) String() string {
	switch c.kind {
	case conditionOneOf:
		return fmt.Sprintf("in%v", c.values)
	case conditionMissing:
		return "missing"
	default:
		return fmt.Sprintf("eq(%v)", c.value)
	}
}

// Filter maps field names to conditions; every condition must hold.
// An empty filter matches every document.
type Filter map[string]Condition

// ByID is a filter on the document id.
func ByID(id interface{}) Filter {
	return Filter{IDField: Eq(id)}
}

// Update carries the two operator sets applied by UpdateOne.
type Update struct {
	// Set overwrites each field unconditionally.
	Set map[string]interface{}
	// Push appends each value to the array at the field, creating it when absent.
	Push map[string]interface{}
}

// IsEmpty reports whether the update would change nothing.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Push) == 0
}

// Validate rejects updates that name a field in both operator sets, or touch the id.
func (u Update) Validate() error {
	for field := range u.Push {
		if _, ok := u.Set[field]; ok {
			return fmt.Errorf("%w: %s", ErrConflictingUpdate, field)
		}
		if field == IDField {
			return fmt.Errorf("cannot push to %s", IDField)
		}
	}
	if _, ok := u.Set[IDField]; ok {
		return fmt.Errorf("cannot set %s", IDField)
	}
	return nil
}
