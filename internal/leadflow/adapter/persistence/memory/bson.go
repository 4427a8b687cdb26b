package memory

import (
	"fmt"
	"reflect"

	"leadflow/internal/leadflow/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalizeDocument round-trips doc through BSON so the stored copy holds the
// same Go types the MongoDB driver decodes (int32/int64, primitive.DateTime,
// primitive.M, primitive.A, ...). The result shares nothing with doc.
func normalizeDocument(doc repository.Document) (repository.Document, error) {
	if doc == nil {
		return repository.Document{}, nil
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return repository.Document(out), nil
}

// normalizeValue applies the same round-trip to a single value.
func normalizeValue(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	doc, err := normalizeDocument(repository.Document{"v": v})
	if err != nil {
		return nil, err
	}
	return doc["v"], nil
}

type normalizedCondition struct {
	cond   repository.Condition
	value  interface{}
	values []interface{}
}

type normalizedFilter map[string]normalizedCondition

func normalizeFilter(filter repository.Filter) (normalizedFilter, error) {
	nf := make(normalizedFilter, len(filter))
	for field, cond := range filter {
		nc := normalizedCondition{cond: cond}
		switch {
		case cond.IsEquals():
			v, err := normalizeValue(cond.Value())
			if err != nil {
				return nil, fmt.Errorf("filter field %q: %w", field, err)
			}
			nc.value = v
		case cond.IsOneOf():
			for _, candidate := range cond.Values() {
				v, err := normalizeValue(candidate)
				if err != nil {
					return nil, fmt.Errorf("filter field %q: %w", field, err)
				}
				nc.values = append(nc.values, v)
			}
		}
		nf[field] = nc
	}
	return nf, nil
}

// matches applies MongoDB's equality rules for the subset we support:
// scalar equality, array-contains for array fields, and null-or-absent.
func (nf normalizedFilter) matches(doc repository.Document) bool {
	for field, nc := range nf {
		v, present := doc[field]
		switch {
		case nc.cond.IsMissing():
			if present && v != nil {
				return false
			}
		case nc.cond.IsEquals():
			if !present || !fieldMatches(v, nc.value) {
				return false
			}
		case nc.cond.IsOneOf():
			if !present {
				v = nil
			}
			found := false
			for _, candidate := range nc.values {
				if fieldMatches(v, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func fieldMatches(stored, want interface{}) bool {
	if valuesEqual(stored, want) {
		return true
	}
	if arr, ok := stored.(primitive.A); ok {
		if _, wantArr := want.(primitive.A); !wantArr {
			for _, elem := range arr {
				if valuesEqual(elem, want) {
					return true
				}
			}
		}
	}
	return false
}

func valuesEqual(a, b interface{}) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	if aa, ok := a.(primitive.A); ok {
		ba, ok := b.(primitive.A)
		if !ok || len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !valuesEqual(aa[i], ba[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
