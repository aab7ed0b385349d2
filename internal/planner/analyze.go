package planner

import (
	"fmt"
	"sort"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/sqlast"
)

// Analyze implements spec.md §4.4 phase 1: verify that a flat visitor and a
// recursive select-visitor agree on the set of relation names the query
// touches. Divergence means one of the two walkers missed a subquery path,
// which would let a logical view slip past Canonicalize unrewritten.
func Analyze(stmt sqlparser.Statement) error {
	flat, err := sqlast.CollectTableNames(stmt)
	if err != nil {
		return err
	}
	recursive, err := sqlast.CollectTableNamesRecursiveSelect(stmt)
	if err != nil {
		return err
	}

	if !sameSet(flat, recursive) {
		return fmt.Errorf("%w: flat and recursive table-name walkers disagree (flat=%v, recursive=%v)",
			lixerr.ErrPlannerInvariant, sortedCopy(flat), sortedCopy(recursive))
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[string]bool{}
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
		delete(set, v)
	}
	return len(set) == 0
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
