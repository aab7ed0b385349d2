package planner

import (
	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/sqlast"
)

// Optimize implements spec.md §4.4 phase 3: a narrow, safe cleanup pass
// over the canonicalized AST. It does not attempt general query
// optimization — only the one rewrite the spec calls out explicitly:
// dropping a self-referential "AS x" alias on a bare column reference
// (Canonicalize's view expansion routinely produces "SELECT entity_id AS
// entity_id" when a template's column already happens to share the outer
// query's expected name), since those no-op aliases only add noise to the
// SQL actually sent to the backend.
func Optimize(stmt sqlparser.Statement) (int, error) {
	return sqlast.FixedPointRewrite(32, func() (bool, error) {
		changed := false
		_ = sqlparser.Walk(func(n sqlparser.SQLNode) (bool, error) {
			sel, ok := n.(*sqlparser.Select)
			if !ok {
				return true, nil
			}
			for _, item := range sel.SelectExprs {
				ae, ok := item.(*sqlparser.AliasedExpr)
				if !ok || ae.As.IsEmpty() {
					continue
				}
				col, ok := ae.Expr.(*sqlparser.ColName)
				if !ok {
					continue
				}
				if col.Name.String() == ae.As.String() {
					ae.As = sqlparser.ColIdent{}
					changed = true
				}
			}
			return true, nil
		}, stmt)
		return changed, nil
	})
}
