package sqlast

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// ResolvedValue is one resolved cell of a VALUES row: either a literal
// constant baked into the statement text, or a reference to the index-th
// bound parameter.
type ResolvedValue struct {
	IsParam bool
	Param   int // 1-based, only meaningful when IsParam
	Literal types.Value
}

// ResolveValuesRows resolves a parenthesized list of VALUES tuples from a
// parsed INSERT statement into concrete rows of ResolvedValue, following
// spec.md §4.2's resolve_values_rows/resolve_insert_rows rules: numeric,
// string, hex (x'...'), and NULL literals resolve to literal values; bound
// placeholders resolve to a (param index) reference; any other expression
// shape (function calls, arithmetic, subqueries) is rejected as
// "unexpected placeholder while resolving row" since only constant or
// placeholder cells are accepted.
func ResolveValuesRows(ins *sqlparser.Insert) ([][]ResolvedValue, error) {
	values, ok := ins.Rows.(sqlparser.Values)
	if !ok {
		return nil, fmt.Errorf("%w: INSERT source is not a VALUES clause", lixerr.ErrPlaceholder)
	}
	rows := make([][]ResolvedValue, 0, len(values))
	for _, tuple := range values {
		row := make([]ResolvedValue, 0, len(tuple))
		for _, expr := range tuple {
			rv, err := resolveExpr(expr)
			if err != nil {
				return nil, err
			}
			row = append(row, rv)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ResolveInsertRows is the Insert-statement-level entry point mirroring
// ResolveValuesRows but validating the statement shape first.
func ResolveInsertRows(stmt sqlparser.Statement) ([][]ResolvedValue, error) {
	ins, ok := stmt.(*sqlparser.Insert)
	if !ok {
		return nil, fmt.Errorf("%w: statement is not an INSERT", lixerr.ErrPlaceholder)
	}
	return ResolveValuesRows(ins)
}

func resolveExpr(expr sqlparser.Expr) (ResolvedValue, error) {
	switch e := expr.(type) {
	case *sqlparser.Literal:
		return resolveLiteral(e)
	case *sqlparser.Argument:
		n, err := argumentIndex(e.Name)
		if err != nil {
			return ResolvedValue{}, err
		}
		return ResolvedValue{IsParam: true, Param: n}, nil
	case *sqlparser.NullVal:
		return ResolvedValue{Literal: types.Null()}, nil
	case *sqlparser.UnaryExpr:
		// Accept unary minus on a numeric literal, e.g. -1.
		if e.Operator == sqlparser.UMinusOp {
			inner, err := resolveExpr(e.Expr)
			if err != nil {
				return ResolvedValue{}, err
			}
			if inner.Literal.Kind == types.KindInt64 {
				return ResolvedValue{Literal: types.Int64(-inner.Literal.I)}, nil
			}
			if inner.Literal.Kind == types.KindFloat64 {
				return ResolvedValue{Literal: types.Float64(-inner.Literal.F)}, nil
			}
		}
		return ResolvedValue{}, fmt.Errorf("%w: unexpected expression while resolving row: %s", lixerr.ErrPlaceholder, String(expr))
	default:
		return ResolvedValue{}, fmt.Errorf("%w: unexpected placeholder while resolving row: %s", lixerr.ErrPlaceholder, String(expr))
	}
}

func argumentIndex(name string) (int, error) {
	// vitess represents bound placeholders as ":v1" internally after
	// normalization; the engine only ever feeds it "?"-derived args, which
	// surface here as ":v<N>".
	trimmed := strings.TrimPrefix(name, "v")
	trimmed = strings.TrimPrefix(trimmed, ":v")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown placeholder format %q", lixerr.ErrPlaceholder, name)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: placeholder index out of range: %d", lixerr.ErrPlaceholder, n)
	}
	return n, nil
}

func resolveLiteral(lit *sqlparser.Literal) (ResolvedValue, error) {
	switch lit.Type {
	case sqlparser.IntVal:
		n, err := strconv.ParseInt(lit.Val, 10, 64)
		if err != nil {
			return ResolvedValue{}, lixerr.Wrapf(err, "parse integer literal %q", lit.Val)
		}
		return ResolvedValue{Literal: types.Int64(n)}, nil
	case sqlparser.FloatVal:
		f, err := strconv.ParseFloat(lit.Val, 64)
		if err != nil {
			return ResolvedValue{}, lixerr.Wrapf(err, "parse float literal %q", lit.Val)
		}
		return ResolvedValue{Literal: types.Float64(f)}, nil
	case sqlparser.StrVal:
		return ResolvedValue{Literal: types.Text(lit.Val)}, nil
	case sqlparser.HexVal:
		b, err := decodeHexLiteral(lit.Val)
		if err != nil {
			return ResolvedValue{}, err
		}
		return ResolvedValue{Literal: types.Blob(b)}, nil
	default:
		return ResolvedValue{}, fmt.Errorf("%w: unsupported literal kind for row resolution: %q", lixerr.ErrPlaceholder, lit.Val)
	}
}

// decodeHexLiteral decodes an x'...'-style hex blob literal's inner digits,
// rejecting odd-length runs and non-hex nibbles explicitly per spec.md §4.2.
func decodeHexLiteral(digits string) ([]byte, error) {
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("%w: odd-length hex literal %q", lixerr.ErrPlaceholder, digits)
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: non-hex nibble in literal %q", lixerr.ErrPlaceholder, digits)
	}
	return b, nil
}
