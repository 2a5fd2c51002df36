// Package dbtest opens throwaway SQL databases for repository and engine
// tests.  It uses the pure-Go sqlite driver so tests need no MySQL server;
// every query the service issues is kept portable between the two.
package dbtest

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// Schema mirrors migrations/mysql/001_init.sql in sqlite dialect.
const Schema = `
CREATE TABLE rooms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	seat_rows INTEGER NOT NULL,
	seat_cols INTEGER NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE seats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id INTEGER NOT NULL REFERENCES rooms(id),
	row_label TEXT NOT NULL,
	seat_number INTEGER NOT NULL,
	seat_type TEXT NOT NULL DEFAULT 'NORMAL',
	couple_id INTEGER NULL,
	is_visible BOOLEAN NOT NULL DEFAULT 1,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (room_id, row_label, seat_number)
);
CREATE TABLE movies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	duration_min INTEGER NOT NULL
);
CREATE TABLE showtimes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	movie_id INTEGER NOT NULL REFERENCES movies(id),
	room_id INTEGER NOT NULL REFERENCES rooms(id),
	format TEXT NOT NULL,
	show_date DATE NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'SCHEDULED',
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE show_seats (
	showtime_id INTEGER NOT NULL REFERENCES showtimes(id),
	seat_id INTEGER NOT NULL REFERENCES seats(id),
	status TEXT NOT NULL DEFAULT 'AVAILABLE',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (showtime_id, seat_id)
);
CREATE TABLE price_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	seat_type TEXT NOT NULL,
	format TEXT NOT NULL,
	price DECIMAL(12,2) NOT NULL,
	UNIQUE (seat_type, format)
);
CREATE TABLE foods (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	price DECIMAL(12,2) NOT NULL,
	stock INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE vouchers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	discount_value DECIMAL(12,2) NOT NULL,
	usage_limit INTEGER NOT NULL DEFAULT 1,
	used_count INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE voucher_usages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	voucher_id INTEGER NOT NULL REFERENCES vouchers(id),
	user_id INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	used_at DATETIME NULL
);
CREATE TABLE payment_methods (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	is_active BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE tickets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	user_id INTEGER NOT NULL,
	showtime_id INTEGER NOT NULL REFERENCES showtimes(id),
	payment_method_id INTEGER NOT NULL REFERENCES payment_methods(id),
	voucher_usage_id INTEGER NULL REFERENCES voucher_usages(id),
	total_amount DECIMAL(12,2) NOT NULL,
	payment_status TEXT NOT NULL DEFAULT 'PENDING',
	booking_status TEXT NOT NULL DEFAULT 'PENDING',
	payment_ref TEXT NULL,
	booking_date DATETIME NOT NULL
);
CREATE TABLE ticket_seats (
	ticket_id INTEGER NOT NULL REFERENCES tickets(id),
	seat_id INTEGER NOT NULL REFERENCES seats(id),
	price DECIMAL(12,2) NOT NULL,
	PRIMARY KEY (ticket_id, seat_id)
);
CREATE TABLE ticket_foods (
	ticket_id INTEGER NOT NULL REFERENCES tickets(id),
	food_id INTEGER NOT NULL REFERENCES foods(id),
	unit_price DECIMAL(12,2) NOT NULL,
	quantity INTEGER NOT NULL,
	PRIMARY KEY (ticket_id, food_id)
);
`

// Open creates a fresh database file under t.TempDir, applies Schema and
// closes the handle when the test ends.  The pool is limited to a single
// connection, which serialises transactions the way row locks would.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite", path)
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(Schema)
	require.NoError(t, err)
	return db
}

// Exec runs a fixture statement and returns the last insert id.
func Exec(t *testing.T, db *sql.DB, query string, args ...interface{}) uint64 {
	t.Helper()
	res, err := db.Exec(query, args...)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}
