package planner

import (
	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/sqlast"
)

// Canonicalize implements spec.md §4.4 phase 2: every logical view
// reference (lix_active_version, lix_active_account, lix_version,
// lix_state_by_version, and lower.go's lix_state/lix_state_history
// entries) is replaced in place with its canonical
// derived-subquery body, so later phases never have to special-case a view
// name again. Runs to a fixed point since an expanded view's body can
// itself reference another logical view (lix_version's pointer join, for
// instance, is itself a materialized-table read that needs no further
// expansion, but user-authored queries joining several logical views in
// one FROM clause require more than one pass to catch every occurrence).
func Canonicalize(stmt sqlparser.Statement, schemas KnownSchemas, dialect Dialect) (int, error) {
	return sqlast.FixedPointRewrite(32, func() (bool, error) {
		changed := false
		var walkErr error
		_ = sqlparser.Walk(func(n sqlparser.SQLNode) (bool, error) {
			sel, ok := n.(*sqlparser.Select)
			if !ok {
				return true, nil
			}
			for i, te := range sel.From {
				rewritten, didChange, err := rewriteTableExpr(te, schemas, dialect)
				if err != nil {
					walkErr = err
					return false, nil
				}
				if didChange {
					sel.From[i] = rewritten
					changed = true
				}
			}
			return true, nil
		}, stmt)
		return changed, walkErr
	})
}

// rewriteTableExpr replaces a bare logical-view table reference with its
// expanded derived table, recursing through JOINs and parenthesized table
// lists. Select nodes nested inside an already-expanded view body, or
// inside a user subquery, are reached independently by the outer
// sqlparser.Walk in Canonicalize — this function only ever looks one
// FROM-list level deep.
func rewriteTableExpr(te sqlparser.TableExpr, schemas KnownSchemas, dialect Dialect) (sqlparser.TableExpr, bool, error) {
	switch t := te.(type) {
	case *sqlparser.AliasedTableExpr:
		tn, ok := t.Expr.(sqlparser.TableName)
		if !ok {
			return te, false, nil
		}
		body, found := Expand(tn.Name.String(), schemas, dialect)
		if !found {
			return te, false, nil
		}
		sel := sqlast.MustParseSelect(body)
		alias := t.As
		if alias.IsEmpty() {
			alias = tn.Name
		}
		return &sqlparser.AliasedTableExpr{
			Expr: &sqlparser.DerivedTable{Select: sel},
			As:   alias,
		}, true, nil

	case *sqlparser.JoinTableExpr:
		left, lc, err := rewriteTableExpr(t.LeftExpr, schemas, dialect)
		if err != nil {
			return te, false, err
		}
		right, rc, err := rewriteTableExpr(t.RightExpr, schemas, dialect)
		if err != nil {
			return te, false, err
		}
		if lc || rc {
			t.LeftExpr = left
			t.RightExpr = right
			return t, true, nil
		}
		return te, false, nil

	case *sqlparser.ParenTableExpr:
		changed := false
		for i, inner := range t.Exprs {
			rewritten, c, err := rewriteTableExpr(inner, schemas, dialect)
			if err != nil {
				return te, false, err
			}
			if c {
				t.Exprs[i] = rewritten
				changed = true
			}
		}
		return t, changed, nil

	default:
		return te, false, nil
	}
}
