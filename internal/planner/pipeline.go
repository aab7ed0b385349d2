package planner

import (
	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/sqlast"
)

// Result is the outcome of running a single statement through all four
// read-rewrite phases.
type Result struct {
	SQL             string
	CanonicalizePasses int
	OptimizePasses     int
}

// Plan runs Analyze, Canonicalize, Optimize, and Lower over a single
// already-parsed statement in order, per spec.md §4.4's fixed pipeline
// shape. The Canonicalize and Optimize fixed-point pass counts are
// reported back for diagnostics.
func Plan(stmt sqlparser.Statement, schemas KnownSchemas, dialect Dialect) (Result, error) {
	if err := Analyze(stmt); err != nil {
		return Result{}, err
	}

	canonPasses, err := Canonicalize(stmt, schemas, dialect)
	if err != nil {
		return Result{}, lixerr.Wrap("canonicalize", err)
	}

	optPasses, err := Optimize(stmt)
	if err != nil {
		return Result{}, lixerr.Wrap("optimize", err)
	}

	lowered, err := Lower(sqlast.String(stmt), dialect)
	if err != nil {
		return Result{}, lixerr.Wrap("lower", err)
	}

	return Result{
		SQL:                lowered,
		CanonicalizePasses: canonPasses,
		OptimizePasses:     optPasses,
	}, nil
}

// PlanText is the string-in, string-out convenience entry point: parse,
// run the full pipeline, return the lowered SQL for a single statement.
// Multi-statement scripts are the caller's concern (sqlast.ParseSQL already
// splits those) — Plan always operates one statement at a time.
func PlanText(sqlText string, schemas KnownSchemas, dialect Dialect) (Result, error) {
	stmt, err := sqlparser.Parse(sqlText)
	if err != nil {
		return Result{}, lixerr.Wrapf(err, "parse statement for planning: %q", sqlText)
	}
	return Plan(stmt, schemas, dialect)
}
