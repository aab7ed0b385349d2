//go:build cgo

// Package doltbackend implements backend.Backend against an embedded Dolt
// engine (github.com/dolthub/driver), speaking the engine's "postgres-like"
// dialect slot. Dolt's wire surface is MySQL-compatible (`?` placeholders),
// so this adapter accepts the engine's dense `$n` bound SQL and rewrites it
// to positional `?` placeholders before handing it to the driver — the
// translation documented in DESIGN.md's doltbackend section. Grounded directly on the
// teacher's internal/storage/dolt/embedded_uow.go connection lifecycle.
package doltbackend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	embedded "github.com/dolthub/driver"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// Backend wraps a single embedded Dolt connector/engine pair.
type Backend struct {
	connector *embedded.DoltConnector
	db        *sql.DB
}

// Open opens an embedded Dolt database rooted at dir (created if absent).
func Open(ctx context.Context, dir, database string) (*Backend, error) {
	dsn := fmt.Sprintf("file://%s?commitname=lix&commitemail=lix@local&database=%s", dir, database)
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, lixerr.Wrap("parse dolt dsn", err)
	}
	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return nil, lixerr.Wrap("open dolt connector", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, lixerr.Wrap("ping dolt backend", err)
	}
	return &Backend{connector: connector, db: db}, nil
}

func (b *Backend) Dialect() backend.Dialect { return backend.DialectPostgresLike }

func (b *Backend) Close() error {
	err := ignoreContextCanceled(b.db.Close())
	cerr := ignoreContextCanceled(b.connector.Close())
	return lixerr.Wrap("close dolt backend", errors.Join(err, cerr))
}

func (b *Backend) Execute(ctx context.Context, query string, params []types.Value) (*types.Rows, error) {
	return execOnQueryer(ctx, b.db, query, params)
}

func (b *Backend) Begin(ctx context.Context) (backend.Transaction, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, lixerr.Wrap("acquire dolt connection", err)
	}
	if err := backend.RetryBusy(ctx, func() error {
		_, execErr := conn.ExecContext(ctx, "START TRANSACTION")
		return execErr
	}); err != nil {
		_ = conn.Close()
		return nil, lixerr.Wrap("begin dolt transaction", err)
	}
	return &Transaction{conn: conn}, nil
}

// Transaction is a dolt-backed backend.Transaction bound to a dedicated connection.
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
		return lixerr.Wrap("commit dolt transaction", err)
	}
	return lixerr.Wrap("close dolt connection after commit", closeErr)
}

func (t *Transaction) Rollback() error {
	if t.committed {
		return nil
	}
	_, err := t.conn.ExecContext(context.Background(), "ROLLBACK")
	closeErr := t.conn.Close()
	if err != nil {
		return lixerr.Wrap("rollback dolt transaction", err)
	}
	return lixerr.Wrap("close dolt connection after rollback", closeErr)
}

func ignoreContextCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dollarToPositional rewrites "$1 ... $n" placeholders to "?" in declaration
// order, matching dolt's MySQL-style positional binding. Single-quoted
// string literals are left untouched; dollar-quoted literals are not
// recognized.
func dollarToPositional(query string) string {
	var out strings.Builder
	inString := false
	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case c == '\'' && !inString:
			inString = true
			out.WriteByte(c)
			i++
		case c == '\'' && inString:
			inString = false
			out.WriteByte(c)
			i++
		case c == '$' && !inString && i+1 < len(query) && isDigit(query[i+1]):
			j := i + 1
			for j < len(query) && isDigit(query[j]) {
				j++
			}
			out.WriteByte('?')
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execOnQueryer(ctx context.Context, q queryer, query string, params []types.Value) (*types.Rows, error) {
	positional := dollarToPositional(query)
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = toDriverValue(p)
	}

	if looksLikeSelect(positional) {
		rows, err := q.QueryContext(ctx, positional, args...)
		if err != nil {
			return nil, lixerr.Wrap("execute query", err)
		}
		defer func() { _ = rows.Close() }()
		return scanRows(rows)
	}
	if _, err := q.ExecContext(ctx, positional, args...); err != nil {
		return nil, lixerr.Wrap("execute statement", err)
	}
	return &types.Rows{}, nil
}

func looksLikeSelect(query string) bool {
	trimmed := strings.TrimLeft(query, " \t\n\r(")
	upper := strings.ToUpper(trimmed)
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
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
