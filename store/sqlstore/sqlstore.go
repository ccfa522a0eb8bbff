// Package sqlstore provides a document store on top of database/sql. All
// documents live in one table holding the id, the table name, the creation
// time and the msgpack encoded body. A second table, named after the first
// with a "_keys" suffix, holds the short string fields of every document so
// the leading equality of an index range narrows scans in the database.
// Scans evaluate ranges, filters and order in memory on the narrowed rows.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/syssam/ents"
	"github.com/syssam/ents/contrib/dataloader"
	"github.com/syssam/ents/dialect"
	"github.com/syssam/ents/dialect/sql"
	"github.com/syssam/ents/store"
)

// DefaultTable is the name of the documents table.
const DefaultTable = "ents_documents"

// MaxKeyLen is the longest string value written to the keys table. Ranges
// on longer values scan the whole table.
const MaxKeyLen = 191

type (
	// Config holds the store configuration.
	Config struct {
		// Table is the name of the documents table.
		Table string
		// Logger receives debug logs of store calls.
		Logger *slog.Logger
		// Clock returns the current time. Creation times are derived from it.
		Clock func() time.Time
		// Migrate creates the documents table when it does not exist.
		Migrate bool
	}

	// Option configures a Store.
	Option func(*Config) error
)

// WithTable sets the name of the documents table.
func WithTable(name string) Option {
	return func(c *Config) error {
		if !sql.ValidIdentifier(name) {
			return fmt.Errorf("sqlstore: invalid table name %q", name)
		}
		c.Table = name
		return nil
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return errors.New("sqlstore: nil logger")
		}
		c.Logger = l
		return nil
	}
}

// WithClock sets the clock used for creation times.
func WithClock(now func() time.Time) Option {
	return func(c *Config) error {
		if now == nil {
			return errors.New("sqlstore: nil clock")
		}
		c.Clock = now
		return nil
	}
}

// WithoutMigration disables the creation of the documents table.
func WithoutMigration() Option {
	return func(c *Config) error {
		c.Migrate = false
		return nil
	}
}

// Store is a store.Store over a dialect.Driver.
type Store struct {
	config  Config
	drv     dialect.Driver
	indexes store.Indexes

	mu   sync.Mutex
	last float64
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.BatchGetter = (*Store)(nil)
	_ store.Source      = (*Store)(nil)
)

// New returns a store using drv. ix resolves index names for scans. Unless
// WithoutMigration is given, the documents table is created if missing.
func New(ctx context.Context, drv dialect.Driver, ix store.Indexes, opts ...Option) (*Store, error) {
	c := Config{Table: DefaultTable, Logger: slog.Default(), Clock: time.Now, Migrate: true}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return nil, err
		}
	}
	if ix == nil {
		return nil, errors.New("sqlstore: nil indexes")
	}
	s := &Store{config: c, drv: drv, indexes: ix}
	if c.Migrate {
		if err := s.migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Open opens a store on the named dialect behind a statistics driver.
// Statements slower than cfg.SlowQueryThreshold are logged to cfg.Logger; a
// zero threshold keeps the driver default.
//
//	cfg, err := ents.LoadConfig("ents.yaml")
//	st, stats, err := sqlstore.Open(ctx, dialect.Postgres, dsn, g, cfg)
//	...
//	cfg.Logger.Info("store closed", "sql", stats.Snapshot())
func Open(ctx context.Context, name, source string, ix store.Indexes, cfg ents.Config, opts ...Option) (*Store, *sql.Stats, error) {
	statsOpts := []sql.StatsOption{sql.WithSlowQueryLog(cfg.Logger)}
	if cfg.SlowQueryThreshold > 0 {
		statsOpts = append(statsOpts, sql.WithSlowThreshold(cfg.SlowQueryThreshold))
	}
	drv, err := sql.OpenWithStats(name, source, statsOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s: %w", name, err)
	}
	if cfg.Logger != nil {
		opts = append([]Option{WithLogger(cfg.Logger)}, opts...)
	}
	s, err := New(ctx, drv, ix, opts...)
	if err != nil {
		_ = drv.Close()
		return nil, nil, err
	}
	return s, drv.Stats(), nil
}

// migrate creates the documents table, the keys table and their indexes.
func (s *Store) migrate(ctx context.Context) error {
	t, k := s.config.Table, s.keys()
	var stmts []string
	switch s.drv.Dialect() {
	case dialect.MySQL:
		stmts = []string{
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id VARCHAR(191) NOT NULL PRIMARY KEY, tbl VARCHAR(191) NOT NULL, creation_time DOUBLE NOT NULL, body LONGBLOB NOT NULL, INDEX %s_tbl (tbl, creation_time))", t, t),
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (doc_id VARCHAR(191) NOT NULL, tbl VARCHAR(191) NOT NULL, field VARCHAR(191) NOT NULL, val VARCHAR(191) NOT NULL, PRIMARY KEY (doc_id, field), INDEX %s_val (tbl, field, val))", k, k),
		}
	case dialect.Postgres:
		stmts = []string{
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id VARCHAR(191) NOT NULL PRIMARY KEY, tbl VARCHAR(191) NOT NULL, creation_time DOUBLE PRECISION NOT NULL, body BYTEA NOT NULL)", t),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_tbl ON %s (tbl, creation_time)", t, t),
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (doc_id VARCHAR(191) NOT NULL, tbl VARCHAR(191) NOT NULL, field VARCHAR(191) NOT NULL, val VARCHAR(191) NOT NULL, PRIMARY KEY (doc_id, field))", k),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_val ON %s (tbl, field, val)", k, k),
		}
	default:
		stmts = []string{
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT NOT NULL PRIMARY KEY, tbl TEXT NOT NULL, creation_time REAL NOT NULL, body BLOB NOT NULL)", t),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_tbl ON %s (tbl, creation_time)", t, t),
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (doc_id TEXT NOT NULL, tbl TEXT NOT NULL, field TEXT NOT NULL, val TEXT NOT NULL, PRIMARY KEY (doc_id, field))", k),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_val ON %s (tbl, field, val)", k, k),
		}
	}
	for _, stmt := range stmts {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying driver.
func (s *Store) Close() error { return s.drv.Close() }

// IndexFields implements store.Indexes.
func (s *Store) IndexFields(table, index string) ([]string, bool) {
	return s.indexes.IndexFields(table, index)
}

// SearchField implements store.Indexes.
func (s *Store) SearchField(table, index string) (string, bool) {
	return s.indexes.SearchField(table, index)
}

// Documents implements store.Source. The first equality of the index
// range is pushed to the database: on _id directly, on other fields through
// the keys table when the value is a short string.
func (s *Store) Documents(ctx context.Context, spec *store.ScanSpec) ([]store.Document, error) {
	query := fmt.Sprintf("SELECT body FROM %s WHERE tbl = ?", s.config.Table)
	args := []any{spec.Table}
	if spec.Range != nil {
		fields, values := spec.Range.Equalities()
		if len(fields) > 0 {
			val, ok := keyValue(values[0])
			switch {
			case !ok:
			case fields[0] == store.IDField:
				query += " AND id = ?"
				args = append(args, val)
			default:
				query += fmt.Sprintf(" AND id IN (SELECT doc_id FROM %s WHERE tbl = ? AND field = ? AND val = ?)", s.keys())
				args = append(args, spec.Table, fields[0], val)
			}
		}
	}
	if spec.Order == store.Desc {
		query += " ORDER BY creation_time DESC"
	} else {
		query += " ORDER BY creation_time"
	}
	s.config.Logger.DebugContext(ctx, "sqlstore: scan", "table", spec.Table, "index", spec.Index)
	return s.query(ctx, s.drv, query, args...)
}

func (s *Store) query(ctx context.Context, eq dialect.ExecQuerier, query string, args ...any) ([]store.Document, error) {
	var rows sql.Rows
	if err := eq.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}
	defer rows.Close()
	var docs []store.Document
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlstore: scan row: %w", err)
		}
		d, err := store.UnmarshalDocument(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}
	return docs, nil
}

// Get returns the document with the given id, or nil.
func (s *Store) Get(ctx context.Context, id store.ID) (store.Document, error) {
	s.config.Logger.DebugContext(ctx, "sqlstore: get", "id", id)
	docs, err := s.query(ctx, s.drv, fmt.Sprintf("SELECT body FROM %s WHERE id = ?", s.config.Table), id.String())
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// GetMany loads the documents of ids in one query. The result has one
// entry per id, nil for missing documents.
func (s *Store) GetMany(ctx context.Context, ids []store.ID) ([]store.Document, error) {
	if len(ids) == 0 {
		return []store.Document{}, nil
	}
	s.config.Logger.DebugContext(ctx, "sqlstore: get many", "count", len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	query := fmt.Sprintf("SELECT body FROM %s WHERE id IN (%s)", s.config.Table, strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "))
	docs, err := s.query(ctx, s.drv, query, args...)
	if err != nil {
		return nil, err
	}
	return dataloader.OrderByKeysNoError(ids, docs, store.Document.ID), nil
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

// creationTime returns the next creation time of this process.
func (s *Store) creationTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := float64(s.config.Clock().UnixMilli())
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}

// Insert stores doc in table and returns its id.
func (s *Store) Insert(ctx context.Context, table string, doc store.Document) (store.ID, error) {
	if table == "" {
		return "", errors.New("sqlstore: insert: empty table name")
	}
	for _, f := range []string{store.IDField, store.CreationTimeField} {
		if _, ok := doc[f]; ok {
			return "", fmt.Errorf("%w: insert into %q sets %s", store.ErrSystemField, table, f)
		}
	}
	id := store.NewID(table)
	stored := normalize(doc)
	stored[store.IDField] = id.String()
	stored[store.CreationTimeField] = s.creationTime()
	body, err := store.MarshalDocument(stored)
	if err != nil {
		return "", err
	}
	err = s.tx(ctx, func(tx dialect.Tx) error {
		query := fmt.Sprintf("INSERT INTO %s (id, tbl, creation_time, body) VALUES (?, ?, ?, ?)", s.config.Table)
		if err := tx.Exec(ctx, query, []any{id.String(), table, stored[store.CreationTimeField], body}, nil); err != nil {
			return fmt.Errorf("sqlstore: insert into %q: %w", table, sql.WrapConstraintError(err))
		}
		return s.writeKeys(ctx, tx, id, stored)
	})
	if err != nil {
		return "", err
	}
	s.config.Logger.DebugContext(ctx, "sqlstore: insert", "table", table, "id", id)
	return id, nil
}

// tx runs fn in a transaction. It commits when fn succeeds and rolls back
// otherwise.
func (s *Store) tx(ctx context.Context, fn func(dialect.Tx) error) (rerr error) {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer func() {
		if rerr != nil {
			rerr = errors.Join(rerr, tx.Rollback())
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return nil
}

// keys returns the name of the keys table.
func (s *Store) keys() string { return s.config.Table + "_keys" }

// writeKeys replaces the keys of the document id with the short string
// fields of doc.
func (s *Store) writeKeys(ctx context.Context, tx dialect.Tx, id store.ID, doc store.Document) error {
	if err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE doc_id = ?", s.keys()), []any{id.String()}, nil); err != nil {
		return fmt.Errorf("sqlstore: keys of %s: %w", id, err)
	}
	fields := make([]string, 0, len(doc))
	for f, v := range doc {
		if _, ok := keyValue(v); ok && f != store.IDField && f != store.CreationTimeField {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	slices.Sort(fields)
	args := make([]any, 0, 4*len(fields))
	for _, f := range fields {
		v, _ := keyValue(doc[f])
		args = append(args, id.String(), id.Table(), f, v)
	}
	query := fmt.Sprintf("INSERT INTO %s (doc_id, tbl, field, val) VALUES %s", s.keys(),
		strings.TrimSuffix(strings.Repeat("(?, ?, ?, ?), ", len(fields)), ", "))
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("sqlstore: keys of %s: %w", id, err)
	}
	return nil
}

// keyValue returns v as a keys table value. Only strings up to MaxKeyLen
// bytes are keyed.
func keyValue(v any) (string, bool) {
	var k string
	switch v := v.(type) {
	case string:
		k = v
	case store.ID:
		k = string(v)
	default:
		return "", false
	}
	return k, len(k) <= MaxKeyLen
}

// Patch shallow-merges partial into the document. Fields set to store.Unset
// are removed. System fields may be present only with their current value.
func (s *Store) Patch(ctx context.Context, id store.ID, partial store.Document) error {
	return s.update(ctx, id, partial, func(cur store.Document) store.Document {
		next := cur.Clone()
		for k, v := range partial {
			if store.IsUnset(v) {
				delete(next, k)
				continue
			}
			next[k] = store.Normalize(v)
		}
		return next
	})
}

// Replace replaces the document body. System fields are kept.
func (s *Store) Replace(ctx context.Context, id store.ID, doc store.Document) error {
	return s.update(ctx, id, doc, func(cur store.Document) store.Document {
		next := normalize(doc)
		next[store.IDField] = cur[store.IDField]
		next[store.CreationTimeField] = cur[store.CreationTimeField]
		return next
	})
}

// update rewrites a document body and its keys inside a transaction.
func (s *Store) update(ctx context.Context, id store.ID, doc store.Document, apply func(store.Document) store.Document) error {
	err := s.tx(ctx, func(tx dialect.Tx) error {
		return s.rewrite(ctx, tx, id, doc, apply)
	})
	if err != nil {
		return err
	}
	s.config.Logger.DebugContext(ctx, "sqlstore: update", "id", id)
	return nil
}

func (s *Store) rewrite(ctx context.Context, tx dialect.Tx, id store.ID, doc store.Document, apply func(store.Document) store.Document) error {
	query := fmt.Sprintf("SELECT body FROM %s WHERE id = ?", s.config.Table)
	if d := s.drv.Dialect(); d == dialect.Postgres || d == dialect.MySQL {
		query += " FOR UPDATE"
	}
	docs, err := s.query(ctx, tx, query, id.String())
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return &store.IDError{ID: id.String(), Err: store.ErrNotFound}
	}
	cur := docs[0]
	for _, f := range []string{store.IDField, store.CreationTimeField} {
		if v, ok := doc[f]; ok && !store.Equal(store.Normalize(v), cur[f]) {
			return fmt.Errorf("%w: %s of %s cannot change", store.ErrSystemField, f, id)
		}
	}
	next := apply(cur)
	body, err := store.MarshalDocument(next)
	if err != nil {
		return err
	}
	if err := tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET body = ? WHERE id = ?", s.config.Table), []any{body, id.String()}, nil); err != nil {
		return fmt.Errorf("sqlstore: update %s: %w", id, sql.WrapConstraintError(err))
	}
	return s.writeKeys(ctx, tx, id, next)
}

// Delete removes the document and its keys.
func (s *Store) Delete(ctx context.Context, id store.ID) error {
	err := s.tx(ctx, func(tx dialect.Tx) error {
		var res sql.Result
		if err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.config.Table), []any{id.String()}, &res); err != nil {
			return fmt.Errorf("sqlstore: delete %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlstore: delete %s: %w", id, err)
		}
		if n == 0 {
			return &store.IDError{ID: id.String(), Err: store.ErrNotFound}
		}
		if err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE doc_id = ?", s.keys()), []any{id.String()}, nil); err != nil {
			return fmt.Errorf("sqlstore: delete keys of %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.config.Logger.DebugContext(ctx, "sqlstore: delete", "id", id)
	return nil
}

func normalize(doc store.Document) store.Document {
	out := make(store.Document, len(doc)+2)
	for k, v := range doc {
		if store.IsUnset(v) {
			continue
		}
		out[k] = store.Normalize(v)
	}
	return out
}
