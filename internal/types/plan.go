package types

// MutationRow describes one tracked-schema write destined for validation
// before execution (§4.5). Its identity tuple is the 7-tuple used to reject
// duplicate mutations within a single statement.
type MutationRow struct {
	EntityID      string
	SchemaKey     string
	SchemaVersion string
	FileID        string
	VersionID     string
	PluginKey     string
	Untracked     bool
	SnapshotJSON  string // empty + Tombstone=true for deletes
	Tombstone     bool
	WriterKey     string
}

// Identity returns the 7-tuple used for duplicate-mutation detection.
func (m MutationRow) Identity() [7]string {
	return [7]string{
		m.EntityID, m.SchemaKey, m.SchemaVersion, m.FileID, m.VersionID, m.PluginKey,
		boolStr(m.Untracked),
	}
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// UpdateValidationPlan pairs a rewritten UPDATE statement with the schema
// context needed to validate its resulting rows post-hoc.
type UpdateValidationPlan struct {
	SchemaKey     string
	SchemaVersion string
	Immutable     bool
}

// PostprocessKind distinguishes the two follow-up plan shapes.
type PostprocessKind int

const (
	PostprocessNone PostprocessKind = iota
	PostprocessVtableUpdate
	PostprocessVtableDelete
)

// PostprocessPlan describes follow-up SQL that must run, inside the same
// transaction, after the base rewritten statement executes (§4.5).
type PostprocessPlan struct {
	Kind                       PostprocessKind
	EffectiveScopeFallback     bool
	EffectiveScopeSelectionSQL string // only valid when EffectiveScopeFallback is true
}

// PreprocessOutput is the result of running one statement through the write
// rewrite pipeline: the statements to execute, in order, plus the optional
// postprocess follow-up and the validation side-channels.
type PreprocessOutput struct {
	Statements      []PreparedStatement
	Postprocess     *PostprocessPlan
	MutationRows    []MutationRow
	UpdateValidations []UpdateValidationPlan
}

// Validate enforces the write-pipeline invariants from spec.md §4.5 and §8.
func (p PreprocessOutput) Validate() error {
	if p.Postprocess != nil {
		if len(p.Statements) != 1 {
			return errPostprocessMultiStatement
		}
		if len(p.MutationRows) != 0 {
			return errPostprocessMutationCoexist
		}
		if p.Postprocess.Kind == PostprocessVtableDelete {
			if p.Postprocess.EffectiveScopeSelectionSQL != "" && !p.Postprocess.EffectiveScopeFallback {
				return errDeleteSelectionWithoutFallback
			}
		}
	}
	if len(p.MutationRows) != 0 && len(p.UpdateValidations) != 0 {
		return errMutationUpdateCoexist
	}
	seen := make(map[[7]string]bool, len(p.MutationRows))
	for _, m := range p.MutationRows {
		id := m.Identity()
		if seen[id] {
			return errDuplicateMutation
		}
		seen[id] = true
	}
	return nil
}

// PreparedStatement is one dialect-bound statement plus its ordered parameters.
type PreparedStatement struct {
	SQL    string
	Params []Value
}
