// Package sql wraps database/sql for the SQL document store.
//
// A Driver implements dialect.Driver over a *sql.DB. Queries are written
// with "?" placeholders; Conn rebinds them for Postgres:
//
//	drv, err := sql.Open(dialect.Postgres, dsn)
//	var rows sql.Rows
//	err = drv.Query(ctx, "SELECT body FROM ents_documents WHERE id = ?", []any{id}, &rows)
//	// runs: SELECT body FROM ents_documents WHERE id = $1
//
// # Statistics
//
// StatsDriver counts statements and transactions and reports slow
// statements through log/slog:
//
//	st := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(logger),
//	)
//	logger.Info("store", "sql", st.Stats().Snapshot())
//
// # Constraint errors
//
// IsUniqueConstraintError and friends classify driver errors of lib/pq,
// go-sql-driver/mysql and modernc.org/sqlite.
package sql
