// Package dataloader provides key-ordered batch helpers for loading
// documents.
//
// Stores answer batched reads (WHERE id IN ...) in their own order and skip
// missing rows. The store.BatchGetter contract wants one entry per requested
// id, in request order, so batch implementations reorder their results:
//
//	docs, err := s.query(ctx, "SELECT body FROM documents WHERE id IN (?, ?, ?)", args...)
//	if err != nil {
//	    return nil, err
//	}
//	return dataloader.OrderByKeysNoError(ids, docs, store.Document.ID), nil
//
// Edge expansion groups join rows by the document they point at:
//
//	byTarget := dataloader.GroupByKey(rows, func(r store.Document) store.ID { return r.ID() })
package dataloader

import "errors"

// ErrNotFound is returned when a key has no value in a batch result.
var ErrNotFound = errors.New("dataloader: value not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys reorders values to match the order of keys. The result has
// one entry per key; keys without a value get the zero value and
// ErrNotFound at the same index. Duplicate keys repeat the value.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// OrderByKeysNoError is like OrderByKeys but leaves missing values as zero
// values without errors.
func OrderByKeysNoError[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) []V {
	result, _ := OrderByKeys(keys, values, keyFn)
	return result
}

// GroupByKey groups values by key, keeping their order within a group.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}
