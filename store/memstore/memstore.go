// Package memstore provides an in-memory document store. It serves as the
// reference store for tests and for embedding the entity layer without a
// database.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/ents/store"
)

type (
	// Config holds the store configuration.
	Config struct {
		// Logger receives debug logs of store calls.
		Logger *slog.Logger
		// Clock returns the current time. Creation times are derived from it.
		Clock func() time.Time
	}

	// Option configures a Store.
	Option func(*Config) error
)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return errors.New("memstore: nil logger")
		}
		c.Logger = l
		return nil
	}
}

// WithClock sets the clock used for creation times.
func WithClock(now func() time.Time) Option {
	return func(c *Config) error {
		if now == nil {
			return errors.New("memstore: nil clock")
		}
		c.Clock = now
		return nil
	}
}

// Store is an in-memory store.Store. It is safe for concurrent use.
type Store struct {
	config  Config
	indexes store.Indexes

	mu     sync.RWMutex
	tables map[string]map[store.ID]store.Document
	// last is the last issued creation time. Creation times are strictly
	// increasing so the default order is the insertion order.
	last float64
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.BatchGetter = (*Store)(nil)
	_ store.Source      = (*Store)(nil)
)

// New returns an empty store. ix resolves index names for scans; a nil ix
// only knows the built-in by_id and by_creation_time indexes.
func New(ix store.Indexes, opts ...Option) (*Store, error) {
	c := Config{Logger: slog.Default(), Clock: time.Now}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return nil, err
		}
	}
	if ix == nil {
		ix = builtin{}
	}
	return &Store{
		config:  c,
		indexes: ix,
		tables:  make(map[string]map[store.ID]store.Document),
	}, nil
}

// builtin resolves the indexes every table has.
type builtin struct{}

func (builtin) IndexFields(_, index string) ([]string, bool) {
	switch index {
	case "by_id":
		return []string{store.IDField}, true
	case "by_creation_time":
		return []string{store.CreationTimeField}, true
	}
	return nil, false
}

func (builtin) SearchField(string, string) (string, bool) { return "", false }

// IndexFields implements store.Indexes.
func (s *Store) IndexFields(table, index string) ([]string, bool) {
	return s.indexes.IndexFields(table, index)
}

// SearchField implements store.Indexes.
func (s *Store) SearchField(table, index string) (string, bool) {
	return s.indexes.SearchField(table, index)
}

// Documents implements store.Source. Equality ranges on _id are answered
// without a table walk.
func (s *Store) Documents(_ context.Context, spec *store.ScanSpec) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tables[spec.Table]
	if spec.Range != nil {
		if fields, values := spec.Range.Equalities(); len(fields) > 0 && fields[0] == store.IDField {
			raw, _ := values[0].(string)
			if d, ok := rows[store.ID(raw)]; ok {
				return []store.Document{d.Clone()}, nil
			}
			return nil, nil
		}
	}
	out := make([]store.Document, 0, len(rows))
	for _, d := range rows {
		out = append(out, d.Clone())
	}
	return out, nil
}

// Get returns the document with the given id, or nil.
func (s *Store) Get(_ context.Context, id store.ID) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.config.Logger.Debug("memstore: get", "id", id)
	return s.tables[id.Table()][id].Clone(), nil
}

// GetMany returns one document per id, nil for missing documents.
func (s *Store) GetMany(_ context.Context, ids []store.ID) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.config.Logger.Debug("memstore: get many", "count", len(ids))
	out := make([]store.Document, len(ids))
	for i, id := range ids {
		out[i] = s.tables[id.Table()][id].Clone()
	}
	return out, nil
}

// Query returns a scan over the documents of table.
func (s *Store) Query(table string) store.Scan {
	return store.NewScan(s, table)
}

// NormalizeID validates raw as an id of table.
func (s *Store) NormalizeID(table, raw string) (store.ID, bool) {
	id, ok := store.ParseID(raw)
	if !ok || id.Table() != table {
		return "", false
	}
	return id, true
}

// Insert stores doc in table and returns its id.
func (s *Store) Insert(_ context.Context, table string, doc store.Document) (store.ID, error) {
	if table == "" {
		return "", errors.New("memstore: insert: empty table name")
	}
	for _, f := range []string{store.IDField, store.CreationTimeField} {
		if _, ok := doc[f]; ok {
			return "", fmt.Errorf("%w: insert into %q sets %s", store.ErrSystemField, table, f)
		}
	}
	stored := normalize(doc)
	id := store.NewID(table)

	s.mu.Lock()
	defer s.mu.Unlock()
	stored[store.IDField] = id.String()
	stored[store.CreationTimeField] = s.creationTime()
	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[store.ID]store.Document)
		s.tables[table] = rows
	}
	rows[id] = stored
	s.config.Logger.Debug("memstore: insert", "table", table, "id", id)
	return id, nil
}

// creationTime returns the next creation time. It must be called with the
// write lock held.
func (s *Store) creationTime() float64 {
	now := float64(s.config.Clock().UnixMilli())
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}

// Patch shallow-merges partial into the document. Fields set to store.Unset
// are removed. System fields may be present only with their current value.
func (s *Store) Patch(_ context.Context, id store.ID, partial store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := checkSystem(id, cur, partial); err != nil {
		return err
	}
	next := cur.Clone()
	for k, v := range partial {
		if store.IsUnset(v) {
			delete(next, k)
			continue
		}
		next[k] = normalizeValue(v)
	}
	s.tables[id.Table()][id] = next
	s.config.Logger.Debug("memstore: patch", "id", id, "fields", len(partial))
	return nil
}

// Replace replaces the document body. System fields are kept.
func (s *Store) Replace(_ context.Context, id store.ID, doc store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := checkSystem(id, cur, doc); err != nil {
		return err
	}
	next := normalize(doc)
	next[store.IDField] = cur[store.IDField]
	next[store.CreationTimeField] = cur[store.CreationTimeField]
	s.tables[id.Table()][id] = next
	s.config.Logger.Debug("memstore: replace", "id", id)
	return nil
}

// Delete removes the document.
func (s *Store) Delete(_ context.Context, id store.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(id); err != nil {
		return err
	}
	delete(s.tables[id.Table()], id)
	s.config.Logger.Debug("memstore: delete", "id", id)
	return nil
}

func (s *Store) lookup(id store.ID) (store.Document, error) {
	d, ok := s.tables[id.Table()][id]
	if !ok {
		return nil, &store.IDError{ID: id.String(), Err: store.ErrNotFound}
	}
	return d, nil
}

// Tables returns the names of the tables holding documents.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.tables))
}

func checkSystem(id store.ID, cur, doc store.Document) error {
	for _, f := range []string{store.IDField, store.CreationTimeField} {
		if v, ok := doc[f]; ok && !store.Equal(store.Normalize(v), cur[f]) {
			return fmt.Errorf("%w: %s of %s cannot change", store.ErrSystemField, f, id)
		}
	}
	return nil
}

func normalize(doc store.Document) store.Document {
	out := make(store.Document, len(doc)+2)
	for k, v := range doc {
		if store.IsUnset(v) {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

// normalizeValue normalizes v and copies nested slices and maps, so stored
// documents share no memory with callers.
func normalizeValue(v any) any {
	switch v := store.Normalize(v).(type) {
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = normalizeValue(v[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalizeValue(e)
		}
		return out
	case store.Document:
		return normalizeValue(map[string]any(v))
	case []byte:
		return slices.Clone(v)
	default:
		return v
	}
}

// snapshot is the encoded form of a store. Documents are encoded with
// store.MarshalDocument.
type snapshot struct {
	Last   float64             `msgpack:"last"`
	Tables map[string][][]byte `msgpack:"tables"`
}

// Snapshot writes the content of the store to w in msgpack format.
func (s *Store) Snapshot(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{Last: s.last, Tables: make(map[string][][]byte, len(s.tables))}
	for name, rows := range s.tables {
		docs := slices.SortedFunc(maps.Values(rows), func(a, b store.Document) int {
			return store.Compare(a[store.CreationTimeField], b[store.CreationTimeField])
		})
		encoded := make([][]byte, len(docs))
		for i, d := range docs {
			b, err := store.MarshalDocument(d)
			if err != nil {
				return fmt.Errorf("memstore: snapshot %s: %w", d.ID(), err)
			}
			encoded[i] = b
		}
		snap.Tables[name] = encoded
	}
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("memstore: encode snapshot: %w", err)
	}
	return nil
}

// Restore replaces the content of the store with a snapshot read from r.
func (s *Store) Restore(r io.Reader) error {
	var snap snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("memstore: decode snapshot: %w", err)
	}
	tables := make(map[string]map[store.ID]store.Document, len(snap.Tables))
	for name, docs := range snap.Tables {
		rows := make(map[store.ID]store.Document, len(docs))
		for _, b := range docs {
			doc, err := store.UnmarshalDocument(b)
			if err != nil {
				return fmt.Errorf("memstore: restore %q: %w", name, err)
			}
			id, ok := store.ParseID(fmt.Sprint(doc[store.IDField]))
			if !ok || id.Table() != name {
				return fmt.Errorf("memstore: restore: %w: %v in table %q", store.ErrInvalidID, doc[store.IDField], name)
			}
			rows[id] = doc
		}
		tables[name] = rows
	}
	s.mu.Lock()
	s.tables, s.last = tables, snap.Last
	s.mu.Unlock()
	s.config.Logger.Debug("memstore: restored snapshot", "tables", len(tables))
	return nil
}
