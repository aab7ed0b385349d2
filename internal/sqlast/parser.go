// Package sqlast provides the SQL parser and AST utilities the rewrite
// pipelines build on: statement parsing, relation-name discovery, and the
// placeholder/row-resolution helpers described in spec.md §4.2.
//
// Parsing itself is delegated to github.com/dolthub/vitess/go/vt/sqlparser,
// the same parser the teacher's dolt storage backend pulls in transitively
// through dolthub/go-mysql-server. Everything downstream (the rewrite
// pipelines) works against sqlparser.Statement so a rewrite rule never has
// to re-derive structure the parser already gave us.
package sqlast

import (
	"fmt"
	"strings"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/lixerr"
)

// Statement is a parsed SQL statement plus its original text, for diagnostics.
type Statement struct {
	AST  sqlparser.Statement
	Text string
}

// ParseSQL splits text into individual statements (honoring an explicit
// BEGIN...COMMIT script as one multi-statement unit, per spec.md §2 step 1)
// and parses each with the vitess grammar.
func ParseSQL(text string) ([]Statement, error) {
	pieces, err := sqlparser.SplitStatementToPieces(text)
	if err != nil {
		return nil, lixerr.Wrap("split sql script", err)
	}
	out := make([]Statement, 0, len(pieces))
	for _, piece := range pieces {
		trimmed := strings.TrimSpace(piece)
		if trimmed == "" {
			continue
		}
		stmt, err := sqlparser.Parse(trimmed)
		if err != nil {
			return nil, lixerr.Wrapf(err, "parse statement %q", truncate(trimmed, 80))
		}
		out = append(out, Statement{AST: stmt, Text: trimmed})
	}
	return out, nil
}

// IsMultiStatementScript reports whether text contains more than one
// statement — the "explicit transaction script vs single" branch of
// spec.md §2 step 1.
func IsMultiStatementScript(text string) (bool, error) {
	stmts, err := ParseSQL(text)
	if err != nil {
		return false, err
	}
	return len(stmts) > 1, nil
}

// String renders an AST node back to SQL text.
func String(node sqlparser.SQLNode) string {
	return sqlparser.String(node)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// BreakWalk is the ControlFlow::Break(LixError) early-termination pattern
// from spec.md §4.2: visit returns a non-nil error to abort the walk, nil
// to continue, and the walk itself is expressed as a boolean "keep going"
// return to match sqlparser.Walk's signature.
func BreakWalk(node sqlparser.SQLNode, visit func(sqlparser.SQLNode) error) error {
	var walkErr error
	_ = sqlparser.Walk(func(n sqlparser.SQLNode) (bool, error) {
		if err := visit(n); err != nil {
			walkErr = err
			return false, nil
		}
		return true, nil
	}, node)
	return walkErr
}

// CollectTableNames walks the AST and returns every referenced relation name,
// used by the Analyze phase to cross-check two independent walkers
// (spec.md §4.4 phase 1).
func CollectTableNames(node sqlparser.SQLNode) ([]string, error) {
	seen := map[string]bool{}
	var names []string
	err := BreakWalk(node, func(n sqlparser.SQLNode) error {
		if tn, ok := n.(sqlparser.TableName); ok && !tn.IsEmpty() {
			name := tn.Name.String()
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		return nil
	})
	return names, err
}

// CollectTableNamesRecursiveSelect is the "recursive select-visitor" leg of
// the Analyze phase's divergence check: it walks only through Select/Union
// nodes and their table expressions, independently of the flat visitor
// above, so a subquery path the flat walker misses shows up as a mismatch.
func CollectTableNamesRecursiveSelect(stmt sqlparser.Statement) ([]string, error) {
	var names []string
	seen := map[string]bool{}
	var visitSelect func(sel *sqlparser.Select) error
	visitSelect = func(sel *sqlparser.Select) error {
		for _, te := range sel.From {
			if err := visitTableExpr(te, &names, seen, visitSelect); err != nil {
				return err
			}
		}
		return nil
	}

	switch s := stmt.(type) {
	case *sqlparser.Select:
		return names, visitSelect(s)
	case *sqlparser.Union:
		if err := visitUnion(s, &names, seen, visitSelect); err != nil {
			return nil, err
		}
		return names, nil
	case *sqlparser.Insert:
		if sel, ok := s.Rows.(sqlparser.SelectStatement); ok {
			return names, visitSelectStatement(sel, &names, seen, visitSelect)
		}
		return names, nil
	default:
		// UPDATE/DELETE target tables are handled by CollectTableNames at the
		// statement level; this leg only concerns itself with SELECT shapes.
		return names, nil
	}
}

func visitSelectStatement(sel sqlparser.SelectStatement, names *[]string, seen map[string]bool, visitSelect func(*sqlparser.Select) error) error {
	switch s := sel.(type) {
	case *sqlparser.Select:
		return visitSelect(s)
	case *sqlparser.Union:
		return visitUnion(s, names, seen, visitSelect)
	default:
		return nil
	}
}

func visitUnion(u *sqlparser.Union, names *[]string, seen map[string]bool, visitSelect func(*sqlparser.Select) error) error {
	if err := visitSelectStatement(u.Left, names, seen, visitSelect); err != nil {
		return err
	}
	return visitSelectStatement(u.Right, names, seen, visitSelect)
}

func visitTableExpr(te sqlparser.TableExpr, names *[]string, seen map[string]bool, visitSelect func(*sqlparser.Select) error) error {
	switch t := te.(type) {
	case *sqlparser.AliasedTableExpr:
		switch e := t.Expr.(type) {
		case sqlparser.TableName:
			if !e.IsEmpty() && !seen[e.Name.String()] {
				seen[e.Name.String()] = true
				*names = append(*names, e.Name.String())
			}
		case *sqlparser.DerivedTable:
			return visitSelectStatement(e.Select, names, seen, visitSelect)
		}
	case *sqlparser.JoinTableExpr:
		if err := visitTableExpr(t.LeftExpr, names, seen, visitSelect); err != nil {
			return err
		}
		return visitTableExpr(t.RightExpr, names, seen, visitSelect)
	case *sqlparser.ParenTableExpr:
		for _, inner := range t.Exprs {
			if err := visitTableExpr(inner, names, seen, visitSelect); err != nil {
				return err
			}
		}
	}
	return nil
}

// MustParseSelect parses a known-good subquery fragment (produced by our own
// templates, never user input) into a *sqlparser.Select for splicing into a
// larger AST during Canonicalize. Panics on malformed template SQL — a bug
// in our own template, never a user-input condition.
func MustParseSelect(sql string) *sqlparser.Select {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		panic(fmt.Sprintf("sqlast: internal template failed to parse: %v\nSQL: %s", err, sql))
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		panic(fmt.Sprintf("sqlast: internal template is not a SELECT: %s", sql))
	}
	return sel
}
