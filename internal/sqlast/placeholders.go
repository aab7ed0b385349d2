package sqlast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lixdb/lix/internal/lixerr"
)

// PlaceholderState tracks placeholder numbering across a multi-statement
// bind so that appended parameters (e.g. version_id injected by the
// planner after the user's own bound params) get dense, non-colliding
// indices — spec.md §4.2's "dense ?n / $n renumbering, dedup repeated
// source-index references" requirement.
type PlaceholderState struct {
	// next is the next placeholder ordinal to hand out.
	next int
	// bySourceIndex maps a source-level placeholder ordinal (as seen in the
	// original, unbound SQL) to the ordinal it was renumbered to, so repeated
	// references to the same source placeholder collapse to one bound slot.
	bySourceIndex map[int]int
	// questionOrdinal counts the bare "?" placeholders seen so far across
	// every bind sharing this state.
	questionOrdinal int
}

// NewPlaceholderState starts a fresh renumbering sequence.
func NewPlaceholderState() *PlaceholderState {
	return &PlaceholderState{bySourceIndex: map[int]int{}}
}

// Allocate returns the dense ordinal for sourceIndex, assigning a new one the
// first time sourceIndex is seen and reusing it on every subsequent
// reference within the same bind.
func (s *PlaceholderState) Allocate(sourceIndex int) int {
	if ord, ok := s.bySourceIndex[sourceIndex]; ok {
		return ord
	}
	s.next++
	s.bySourceIndex[sourceIndex] = s.next
	return s.next
}

// AllocateAppended hands out a fresh dense ordinal for a parameter the
// engine appends itself (not present in the source SQL at all), e.g. an
// injected version_id. It never collides with a source-derived ordinal
// because it does not pass through bySourceIndex.
func (s *PlaceholderState) AllocateAppended() int {
	s.next++
	return s.next
}

// placeholderKind distinguishes the two placeholder spellings the engine
// accepts on input ("?N" sqlite-style positional, or "$N" postgres-style).
type placeholderKind int

const (
	placeholderQuestion placeholderKind = iota
	placeholderDollar
)

// BindSQLWithState rewrites every placeholder in sql to a dense, renumbered
// form using state, returning the rewritten SQL in the target spelling
// (question marks for PlaceholderQuestion, dollar-numbers for
// PlaceholderDollar). A "$N" placeholder is numbered by its source index N,
// so repeated references share one ordinal; a bare "?" takes the next
// source index in order, counted across every bind that shares state. Only
// the SQL text is returned; bound parameter values are not touched.
//
// Placeholders are never promoted out of string literals: a "?" or "$1"
// appearing inside a quoted string is left as literal text.
func BindSQLWithState(sql string, dialect PlaceholderDialect, state *PlaceholderState) (string, error) {
	var out strings.Builder
	inString := false
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '\'' && !inString:
			inString = true
			out.WriteByte(c)
			i++
		case c == '\'' && inString:
			// SQL-standard doubled single quote is an escaped quote, not a
			// closing delimiter.
			if i+1 < len(sql) && sql[i+1] == '\'' {
				out.WriteString("''")
				i += 2
				continue
			}
			inString = false
			out.WriteByte(c)
			i++
		case !inString && c == '$' && i+1 < len(sql) && isDigit(sql[i+1]):
			j := i + 1
			for j < len(sql) && isDigit(sql[j]) {
				j++
			}
			n, err := strconv.Atoi(sql[i+1 : j])
			if err != nil {
				return "", lixerr.Wrapf(err, "parse $ placeholder at offset %d", i)
			}
			ord := state.Allocate(n)
			writePlaceholder(&out, dialect, ord)
			i = j
		case !inString && c == '?':
			state.questionOrdinal++
			ord := state.Allocate(state.questionOrdinal)
			writePlaceholder(&out, dialect, ord)
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	if inString {
		return "", fmt.Errorf("%w: unterminated string literal", lixerr.ErrPlaceholder)
	}
	return out.String(), nil
}

// PlaceholderDialect selects the emitted placeholder spelling.
type PlaceholderDialect int

const (
	PlaceholderQuestion PlaceholderDialect = iota
	PlaceholderDollar
)

func writePlaceholder(out *strings.Builder, dialect PlaceholderDialect, ord int) {
	switch dialect {
	case PlaceholderDollar:
		out.WriteByte('$')
		out.WriteString(strconv.Itoa(ord))
	default:
		out.WriteByte('?')
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
