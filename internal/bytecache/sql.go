package bytecache

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const schema = `create table if not exists cache_entry (
	key text primary key,
	value blob not null
);`

// SQLStore keeps entries in a single table of a sqlite (or libsql) database.
type SQLStore struct {
	db *sql.DB
}

func driverFor(dsn string) string {
	for _, prefix := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "libsql"
		}
	}
	return "sqlite"
}

// OpenSQLStore opens the database at dsn, a local sqlite path (or `:memory:`)
// or a remote libsql url, and creates the cache table when missing.
func OpenSQLStore(ctx context.Context, dsn string) (SQLStore, error) {
	db, err := sql.Open(driverFor(dsn), dsn)
	if err != nil {
		return SQLStore{}, err
	}
	if dsn == ":memory:" {
		// every new connection to :memory: is a different database
		db.SetMaxOpenConns(1)
	}
	return NewSQLStore(ctx, db)
}

func NewSQLStore(ctx context.Context, db *sql.DB) (SQLStore, error) {
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return SQLStore{}, err
	}
	return SQLStore{db: db}, nil
}

func (s SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "select value from cache_entry where key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s SQLStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into cache_entry (key, value) values (?, ?)
		on conflict (key) do update set value = excluded.value`,
		key, value,
	)
	return err
}

func (s SQLStore) Close() error {
	return s.db.Close()
}
