// Package sqlitebackend implements backend.Backend against modernc.org/sqlite,
// the pure-Go sqlite driver used elsewhere in the example pack
// (hazyhaar-GoClode's go.mod requires it directly; the teacher's own example
// modules list it as an indirect dependency of the storage layer).
package sqlitebackend

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// Backend wraps a *sql.DB opened against the modernc sqlite driver.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite database file at path, or an
// in-memory database when path is ":memory:". Matches the teacher's
// pragma set for foreign keys and busy timeout (internal/storage/sqlite
// store_race_test.go's DSN).
func Open(path string) (*Backend, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_pragma=foreign_keys(ON)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, lixerr.Wrap("open sqlite backend", err)
	}
	db.SetMaxOpenConns(1) // single-writer per process, per spec §4.1
	return &Backend{db: db}, nil
}

func (b *Backend) Dialect() backend.Dialect { return backend.DialectSQLite }

func (b *Backend) Close() error { return lixerr.Wrap("close sqlite backend", b.db.Close()) }

func (b *Backend) Execute(ctx context.Context, query string, params []types.Value) (*types.Rows, error) {
	return execOnQueryer(ctx, b.db, query, params)
}

func (b *Backend) Begin(ctx context.Context) (backend.Transaction, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, lixerr.Wrap("acquire sqlite connection", err)
	}
	if err := backend.RetryBusy(ctx, func() error {
		_, execErr := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		return execErr
	}); err != nil {
		_ = conn.Close()
		return nil, lixerr.Wrap("begin immediate transaction", err)
	}
	return &Transaction{conn: conn}, nil
}

// Transaction is a sqlite-backed backend.Transaction bound to a dedicated connection.
type Transaction struct {
	conn      *sql.Conn
	committed bool
}

func (t *Transaction) Execute(ctx context.Context, query string, params []types.Value) (*types.Rows, error) {
	return execOnQueryer(ctx, t.conn, query, params)
}

func (t *Transaction) Commit() error {
	_, err := t.conn.ExecContext(context.Background(), "COMMIT")
	t.committed = true
	closeErr := t.conn.Close()
	if err != nil {
		return lixerr.Wrap("commit sqlite transaction", err)
	}
	return lixerr.Wrap("close sqlite connection after commit", closeErr)
}

func (t *Transaction) Rollback() error {
	if t.committed {
		return nil
	}
	_, err := t.conn.ExecContext(context.Background(), "ROLLBACK")
	closeErr := t.conn.Close()
	if err != nil {
		return lixerr.Wrap("rollback sqlite transaction", err)
	}
	return lixerr.Wrap("close sqlite connection after rollback", closeErr)
}

// queryer is satisfied by both *sql.DB and *sql.Conn.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execOnQueryer(ctx context.Context, q queryer, query string, params []types.Value) (*types.Rows, error) {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = toDriverValue(p)
	}

	if looksLikeSelect(query) {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, lixerr.Wrap("execute query", err)
		}
		defer func() { _ = rows.Close() }()
		return scanRows(rows)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, lixerr.Wrap("execute statement", err)
	}
	return &types.Rows{}, nil
}

func looksLikeSelect(query string) bool {
	for _, r := range query {
		switch r {
		case ' ', '\t', '\n', '\r', '(':
			continue
		default:
			return r == 'S' || r == 's' || r == 'W' || r == 'w' // SELECT or WITH
		}
	}
	return false
}

func toDriverValue(v types.Value) any {
	switch v.Kind {
	case types.KindNull:
		return nil
	case types.KindInt64:
		return v.I
	case types.KindFloat64:
		return v.F
	case types.KindText:
		return v.S
	case types.KindBlob:
		return v.B
	default:
		return nil
	}
}

func scanRows(rows *sql.Rows) (*types.Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, lixerr.Wrap("read columns", err)
	}
	out := &types.Rows{Columns: cols}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, lixerr.Wrap("scan row", err)
		}
		row := make(types.Row, len(cols))
		for i, v := range raw {
			row[i] = fromDriverValue(v)
		}
		out.Data = append(out.Data, row)
	}
	return out, lixerr.Wrap("iterate rows", rows.Err())
}

func fromDriverValue(v any) types.Value {
	switch t := v.(type) {
	case nil:
		return types.Null()
	case int64:
		return types.Int64(t)
	case float64:
		return types.Float64(t)
	case string:
		return types.Text(t)
	case []byte:
		return types.Blob(t)
	default:
		return types.Text(fmt.Sprintf("%v", t))
	}
}
