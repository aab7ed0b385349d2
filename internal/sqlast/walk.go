package sqlast

import "github.com/dolthub/vitess/go/vt/sqlparser"

// Rewrite walks node depth-first and replaces each *sqlparser.ColName whose
// rendered name appears in replacements, splicing in the corresponding
// Expr, so a logical-view column reference can be swapped for its physical
// vtable-column expression. Only WHERE clauses and SELECT-list items are
// visited.
func Rewrite(node sqlparser.SQLNode, replacements map[string]sqlparser.Expr) {
	_ = sqlparser.Walk(func(n sqlparser.SQLNode) (bool, error) {
		switch t := n.(type) {
		case *sqlparser.Where:
			if t.Expr != nil {
				t.Expr = rewriteExpr(t.Expr, replacements)
			}
		case *sqlparser.Select:
			for i, item := range t.SelectExprs {
				if ae, ok := item.(*sqlparser.AliasedExpr); ok {
					ae.Expr = rewriteExpr(ae.Expr, replacements)
					t.SelectExprs[i] = ae
				}
			}
		}
		return true, nil
	}, node)
}

func rewriteExpr(e sqlparser.Expr, replacements map[string]sqlparser.Expr) sqlparser.Expr {
	if col, ok := e.(*sqlparser.ColName); ok {
		if repl, ok := replacements[col.Name.String()]; ok {
			return repl
		}
	}
	switch t := e.(type) {
	case *sqlparser.AndExpr:
		t.Left = rewriteExpr(t.Left, replacements)
		t.Right = rewriteExpr(t.Right, replacements)
	case *sqlparser.OrExpr:
		t.Left = rewriteExpr(t.Left, replacements)
		t.Right = rewriteExpr(t.Right, replacements)
	case *sqlparser.ComparisonExpr:
		t.Left = rewriteExpr(t.Left, replacements)
		t.Right = rewriteExpr(t.Right, replacements)
	case *sqlparser.ParenExpr:
		t.Expr = rewriteExpr(t.Expr, replacements)
	}
	return e
}

// FixedPointRewrite applies pass until it reports no further change or
// maxPasses is reached, matching the ≤32-pass convergence bound each rewrite
// phase (Canonicalize/Optimize) enforces.
func FixedPointRewrite(maxPasses int, pass func() (changed bool, err error)) (int, error) {
	for i := 0; i < maxPasses; i++ {
		changed, err := pass()
		if err != nil {
			return i + 1, err
		}
		if !changed {
			return i + 1, nil
		}
	}
	return maxPasses, errPassLimitExceeded
}
