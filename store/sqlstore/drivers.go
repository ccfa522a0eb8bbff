package sqlstore

// Database drivers registered with database/sql under the dialect names
// "sqlite", "postgres" and "mysql".
import (
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)
