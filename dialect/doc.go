// Package dialect defines the driver abstraction used by the SQL document
// store.
//
// # Supported Dialects
//
//   - Postgres: PostgreSQL database (github.com/lib/pq)
//   - MySQL: MySQL/MariaDB database (github.com/go-sql-driver/mysql)
//   - SQLite: SQLite database (modernc.org/sqlite)
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The Tx interface adds Commit and Rollback to the two query methods.
//
// # Usage
//
//	drv, err := sql.Open(dialect.SQLite, "file:ents?mode=memory&cache=shared")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	st, err := sqlstore.New(ctx, drv, g)
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver wrapper, placeholder rebinding,
//     query statistics and constraint error classification
package dialect
