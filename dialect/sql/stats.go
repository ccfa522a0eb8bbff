package sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/syssam/ents/dialect"
)

// DefaultSlowThreshold is the slow statement threshold of a StatsDriver
// created without WithSlowThreshold.
const DefaultSlowThreshold = 100 * time.Millisecond

// Stats counts the statements run through a StatsDriver. The zero value is
// ready to use and safe for concurrent use.
type Stats struct {
	queries   atomic.Int64
	execs     atomic.Int64
	txs       atomic.Int64
	rollbacks atomic.Int64
	slow      atomic.Int64
	errors    atomic.Int64
	elapsed   atomic.Int64
	longest   atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Queries   int64         // SELECT statements.
	Execs     int64         // statements run with Exec.
	Txs       int64         // transactions begun.
	Rollbacks int64         // transactions rolled back.
	Slow      int64         // statements above the slow threshold.
	Errors    int64         // statements that failed.
	Elapsed   time.Duration // time spent in statements.
	Longest   time.Duration // slowest statement.
}

// Snapshot returns the current counts.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Queries:   s.queries.Load(),
		Execs:     s.execs.Load(),
		Txs:       s.txs.Load(),
		Rollbacks: s.rollbacks.Load(),
		Slow:      s.slow.Load(),
		Errors:    s.errors.Load(),
		Elapsed:   time.Duration(s.elapsed.Load()),
		Longest:   time.Duration(s.longest.Load()),
	}
}

func (s *Stats) observe(d time.Duration, query bool, err error) {
	if query {
		s.queries.Add(1)
	} else {
		s.execs.Add(1)
	}
	if err != nil {
		s.errors.Add(1)
	}
	s.elapsed.Add(int64(d))
	for {
		cur := s.longest.Load()
		if int64(d) <= cur || s.longest.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

// Statements returns the number of statements run.
func (s Snapshot) Statements() int64 { return s.Queries + s.Execs }

// Mean returns the mean statement duration.
func (s Snapshot) Mean() time.Duration {
	if n := s.Statements(); n > 0 {
		return s.Elapsed / time.Duration(n)
	}
	return 0
}

// LogValue implements slog.LogValuer.
func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("queries", s.Queries),
		slog.Int64("execs", s.Execs),
		slog.Int64("txs", s.Txs),
		slog.Int64("rollbacks", s.Rollbacks),
		slog.Int64("slow", s.Slow),
		slog.Int64("errors", s.Errors),
		slog.Duration("mean", s.Mean()),
		slog.Duration("longest", s.Longest),
	)
}

func (s Snapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d txs=%d rollbacks=%d slow=%d errors=%d mean=%s longest=%s",
		s.Queries, s.Execs, s.Txs, s.Rollbacks, s.Slow, s.Errors, s.Mean(), s.Longest)
}

// SlowStatement describes a statement that ran above the slow threshold.
type SlowStatement struct {
	Query    string
	Args     int
	Duration time.Duration
	Err      error
}

// StatsDriver is a Driver that counts its statements and reports the slow
// ones. Its threshold and callback are fixed at construction.
type StatsDriver struct {
	*Driver
	stats     *Stats
	threshold time.Duration
	onSlow    func(context.Context, SlowStatement)
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which statements are slow.
// A zero threshold reports every statement.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) { s.threshold = d }
}

// WithSlowStatement calls fn for every slow statement.
func WithSlowStatement(fn func(context.Context, SlowStatement)) StatsOption {
	return func(s *StatsDriver) { s.onSlow = fn }
}

// WithSlowQueryLog logs slow statements to l, or to the default logger when
// l is nil. Arguments are counted, not logged, since documents may hold
// user data.
func WithSlowQueryLog(l *slog.Logger) StatsOption {
	if l == nil {
		l = slog.Default()
	}
	return WithSlowStatement(func(ctx context.Context, st SlowStatement) {
		attrs := []any{"duration", st.Duration, "statement", verb(st.Query), "query", st.Query, "args", st.Args}
		if st.Err != nil {
			attrs = append(attrs, "error", st.Err)
		}
		l.WarnContext(ctx, "dialect/sql: slow statement", attrs...)
	})
}

// NewStatsDriver wraps drv:
//
//	st := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger))
//	s, err := sqlstore.New(ctx, st, g)
//	...
//	logger.Info("store", "sql", st.Stats().Snapshot())
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, stats: &Stats{}, threshold: DefaultSlowThreshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the counters of the driver.
func (d *StatsDriver) Stats() *Stats { return d.stats }

// Query runs a query through the wrapped driver and counts it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.observe(ctx, query, args, time.Since(start), true, err)
	return err
}

// Exec runs a statement through the wrapped driver and counts it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.observe(ctx, query, args, time.Since(start), false, err)
	return err
}

func (d *StatsDriver) observe(ctx context.Context, query string, args any, elapsed time.Duration, isQuery bool, err error) {
	d.stats.observe(elapsed, isQuery, err)
	if elapsed < d.threshold {
		return
	}
	d.stats.slow.Add(1)
	if d.onSlow != nil {
		n := 0
		if a, ok := args.([]any); ok {
			n = len(a)
		}
		d.onSlow(ctx, SlowStatement{Query: query, Args: n, Duration: elapsed, Err: err})
	}
}

// Tx begins a transaction whose statements are counted by d.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	d.stats.txs.Add(1)
	return &statsTx{Tx: tx, drv: d}, nil
}

type statsTx struct {
	dialect.Tx
	drv *StatsDriver
}

func (tx *statsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.drv.observe(ctx, query, args, time.Since(start), true, err)
	return err
}

func (tx *statsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.drv.observe(ctx, query, args, time.Since(start), false, err)
	return err
}

func (tx *statsTx) Rollback() error {
	tx.drv.stats.rollbacks.Add(1)
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*statsTx)(nil)
)

// verb returns the leading keyword of a statement, upper-cased.
func verb(query string) string {
	query = strings.TrimSpace(query)
	if i := strings.IndexAny(query, " \t\n("); i > 0 {
		query = query[:i]
	}
	return strings.ToUpper(query)
}

// OpenWithStats opens a counted connection to the named database.
func OpenWithStats(driverName, source string, opts ...StatsOption) (*StatsDriver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	return NewStatsDriver(NewDriver(driverName, Conn{db, driverName}), opts...), nil
}
