// Package writeplan implements spec.md §4.5's write rewrite pipeline:
// turning an INSERT/UPDATE/DELETE against a logical state view into the
// resolved types.MutationRow values vtable.Engine.Write actually applies.
//
// Scope: this pass handles writes against lix_state and
// lix_state_by_version directly — the two generic, schema-key-carrying
// views every plugin and the bootstrap path write through. Per-schema
// "native" entity views (e.g. a view literally named after a stored
// schema's key, with one SQL column per JSON property) need a schema's
// property catalog to generate column bindings for, which is a larger
// undertaking than this pass covers; see DESIGN.md for the explicit scope
// note.
package writeplan

import (
	"context"
	"fmt"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/sqlast"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/vtable"
)

// stateViewNames are the two logical views this pass rewrites writes
// against. lix_state_by_version requires version_id explicitly in every
// row; lix_state is accepted as a synonym since an INSERT/UPDATE/DELETE
// against the inheritance-aware read view always means "write to this
// version", never "write to every version in my ancestor chain".
var stateViewNames = map[string]bool{
	"lix_state":            true,
	"lix_state_by_version": true,
}

// identityColumns is the fixed set of columns that together select one
// row: the same (entity_id, schema_key, file_id, version_id) tuple
// internal/materialize ranks winners by.
var identityColumns = []string{"entity_id", "schema_key", "file_id", "version_id"}

// Preprocess turns a single parsed statement into resolved mutation
// intents. params supplies the bound values for any placeholder cell the
// statement's VALUES/SET/WHERE clauses reference (1-indexed, matching
// sqlast.ResolveValuesRows' Param numbering).
//
// INSERT is handled purely from the AST plus params, with no DB access.
// UPDATE and DELETE need to read the row they are about to replace or
// tombstone (to preserve its schema_version/plugin_key/untracked-ness,
// none of which are ever named in a DELETE and are only sometimes named in
// an UPDATE's SET list), so they take ctx and the engine whose backend to
// resolve that existing row against.
func Preprocess(ctx context.Context, eng *vtable.Engine, stmt sqlparser.Statement, params []types.Value) (types.PreprocessOutput, error) {
	switch s := stmt.(type) {
	case *sqlparser.Insert:
		return preprocessInsert(s, params)
	case *sqlparser.Update:
		return preprocessUpdate(ctx, eng, s, params)
	case *sqlparser.Delete:
		return preprocessDelete(ctx, eng, s, params)
	default:
		return types.PreprocessOutput{}, fmt.Errorf("%w: unsupported write statement shape", lixerr.ErrPlannerInvariant)
	}
}

func tableName(te sqlparser.TableExpr) (string, bool) {
	ate, ok := te.(*sqlparser.AliasedTableExpr)
	if !ok {
		return "", false
	}
	tn, ok := ate.Expr.(sqlparser.TableName)
	if !ok || tn.IsEmpty() {
		return "", false
	}
	return tn.Name.String(), true
}

func requireStateView(name string) error {
	if !stateViewNames[name] {
		return fmt.Errorf("%w: writeplan does not know how to rewrite writes against %q", lixerr.ErrPlannerInvariant, name)
	}
	return nil
}

func preprocessInsert(ins *sqlparser.Insert, params []types.Value) (types.PreprocessOutput, error) {
	target := ins.Table.Name.String()
	if err := requireStateView(target); err != nil {
		return types.PreprocessOutput{}, err
	}

	columns := make([]string, len(ins.Columns))
	for i, c := range ins.Columns {
		columns[i] = c.String()
	}

	rows, err := sqlast.ResolveInsertRows(ins)
	if err != nil {
		return types.PreprocessOutput{}, err
	}

	out := types.PreprocessOutput{}
	for _, row := range rows {
		if len(row) != len(columns) {
			return types.PreprocessOutput{}, fmt.Errorf("%w: INSERT column count does not match VALUES arity", lixerr.ErrPlannerInvariant)
		}
		cell := make(map[string]types.Value, len(columns))
		for i, col := range columns {
			v, err := resolveCell(row[i], params)
			if err != nil {
				return types.PreprocessOutput{}, err
			}
			cell[col] = v
		}
		mr, err := buildMutationRow(cell)
		if err != nil {
			return types.PreprocessOutput{}, err
		}
		out.MutationRows = append(out.MutationRows, mr)
	}
	if err := out.Validate(); err != nil {
		return types.PreprocessOutput{}, err
	}
	return out, nil
}

// resolveCell turns one resolved INSERT cell (from sqlast.ResolveInsertRows)
// into a concrete types.Value, substituting the 1-indexed bound parameter
// when the cell was a placeholder.
func resolveCell(rv sqlast.ResolvedValue, params []types.Value) (types.Value, error) {
	if !rv.IsParam {
		return rv.Literal, nil
	}
	if rv.Param < 1 || rv.Param > len(params) {
		return types.Value{}, fmt.Errorf("%w: placeholder $%d has no bound parameter", lixerr.ErrPlaceholder, rv.Param)
	}
	return params[rv.Param-1], nil
}

// buildMutationRow assembles a types.MutationRow from a write statement's
// resolved column values, requiring the identity columns and treating a
// NULL or absent snapshot_content as a tombstone row, defaulting
// schema_version/plugin_key/writer_key/untracked when the statement omits
// them.
func buildMutationRow(cell map[string]types.Value) (types.MutationRow, error) {
	var mr types.MutationRow
	for _, col := range identityColumns {
		v, ok := cell[col]
		if !ok {
			return types.MutationRow{}, fmt.Errorf("%w: write is missing required column %q", lixerr.ErrPlannerInvariant, col)
		}
		text, ok := v.AsText()
		if !ok {
			return types.MutationRow{}, fmt.Errorf("%w: column %q must be text-like, got %s", lixerr.ErrPlannerInvariant, col, v.String())
		}
		switch col {
		case "entity_id":
			mr.EntityID = text
		case "schema_key":
			mr.SchemaKey = text
		case "file_id":
			mr.FileID = text
		case "version_id":
			mr.VersionID = text
		}
	}

	mr.SchemaVersion = textOrDefault(cell, "schema_version", "1")
	mr.PluginKey = textOrDefault(cell, "plugin_key", "lix")
	mr.WriterKey = textOrDefault(cell, "writer_key", "")

	if v, ok := cell["untracked"]; ok {
		n, _ := v.AsInt64()
		mr.Untracked = n != 0
	}

	content, hasContent := cell["snapshot_content"]
	if !hasContent || content.IsNull() {
		mr.Tombstone = true
		mr.SnapshotJSON = ""
	} else {
		text, ok := content.AsText()
		if !ok {
			return types.MutationRow{}, fmt.Errorf("%w: snapshot_content must be text (JSON)", lixerr.ErrPlannerInvariant)
		}
		mr.SnapshotJSON = text
	}
	return mr, nil
}

func textOrDefault(cell map[string]types.Value, col, def string) string {
	v, ok := cell[col]
	if !ok || v.IsNull() {
		return def
	}
	text, ok := v.AsText()
	if !ok {
		return def
	}
	return text
}

// equalityPredicates walks a WHERE clause's top-level AND conjunction and
// extracts each "column = literal-or-placeholder" comparison. Anything else
// (OR, IN, function calls, non-equality operators) is rejected — writeplan
// only needs to support the exact conjunctive-equality shape the engine's
// own generated UPDATE/DELETE statements use to target one identity tuple.
func equalityPredicates(where *sqlparser.Where, params []types.Value) (map[string]types.Value, error) {
	out := map[string]types.Value{}
	if where == nil {
		return out, fmt.Errorf("%w: UPDATE/DELETE against a state view requires a WHERE clause", lixerr.ErrPlannerInvariant)
	}
	var walk func(expr sqlparser.Expr) error
	walk = func(expr sqlparser.Expr) error {
		switch e := expr.(type) {
		case *sqlparser.AndExpr:
			if err := walk(e.Left); err != nil {
				return err
			}
			return walk(e.Right)
		case *sqlparser.ParenExpr:
			return walk(e.Expr)
		case *sqlparser.ComparisonExpr:
			if e.Operator != sqlparser.EqualOp {
				return fmt.Errorf("%w: only equality predicates are supported in a state-view WHERE clause", lixerr.ErrPlannerInvariant)
			}
			col, ok := e.Left.(*sqlparser.ColName)
			if !ok {
				return fmt.Errorf("%w: WHERE predicate left-hand side must be a column", lixerr.ErrPlannerInvariant)
			}
			rv, err := sqlast.ResolveValuesRows(&sqlparser.Insert{Rows: sqlparser.Values{sqlparser.ValTuple{e.Right}}})
			if err != nil {
				return fmt.Errorf("%w: unsupported WHERE predicate right-hand side for column %q", lixerr.ErrPlannerInvariant, col.Name.String())
			}
			v, err := resolveCell(rv[0][0], params)
			if err != nil {
				return err
			}
			out[col.Name.String()] = v
			return nil
		default:
			return fmt.Errorf("%w: unsupported WHERE predicate shape", lixerr.ErrPlannerInvariant)
		}
	}
	if err := walk(where.Expr); err != nil {
		return nil, err
	}
	return out, nil
}

func singleTableTarget(exprs sqlparser.TableExprs) (string, error) {
	if len(exprs) != 1 {
		return "", fmt.Errorf("%w: UPDATE/DELETE against a state view must target exactly one table", lixerr.ErrPlannerInvariant)
	}
	name, ok := tableName(exprs[0])
	if !ok {
		return "", fmt.Errorf("%w: unsupported UPDATE/DELETE target shape", lixerr.ErrPlannerInvariant)
	}
	return name, nil
}

func preprocessUpdate(ctx context.Context, eng *vtable.Engine, upd *sqlparser.Update, params []types.Value) (types.PreprocessOutput, error) {
	target, err := singleTableTarget(upd.TableExprs)
	if err != nil {
		return types.PreprocessOutput{}, err
	}
	if err := requireStateView(target); err != nil {
		return types.PreprocessOutput{}, err
	}

	where, err := equalityPredicates(upd.Where, params)
	if err != nil {
		return types.PreprocessOutput{}, err
	}
	existing, err := lookupExisting(ctx, eng, where)
	if err != nil {
		return types.PreprocessOutput{}, err
	}

	cell := existingToCell(existing)
	for _, item := range upd.Exprs {
		col := item.Name.Name.String()
		rv, err := sqlast.ResolveValuesRows(&sqlparser.Insert{Rows: sqlparser.Values{sqlparser.ValTuple{item.Expr}}})
		if err != nil {
			return types.PreprocessOutput{}, fmt.Errorf("%w: unsupported SET expression for column %q", lixerr.ErrPlannerInvariant, col)
		}
		v, err := resolveCell(rv[0][0], params)
		if err != nil {
			return types.PreprocessOutput{}, err
		}
		cell[col] = v
	}
	for col, v := range where {
		cell[col] = v
	}

	mr, err := buildMutationRow(cell)
	if err != nil {
		return types.PreprocessOutput{}, err
	}
	out := types.PreprocessOutput{MutationRows: []types.MutationRow{mr}}
	if err := out.Validate(); err != nil {
		return types.PreprocessOutput{}, err
	}
	return out, nil
}

func preprocessDelete(ctx context.Context, eng *vtable.Engine, del *sqlparser.Delete, params []types.Value) (types.PreprocessOutput, error) {
	target, err := singleTableTarget(del.TableExprs)
	if err != nil {
		return types.PreprocessOutput{}, err
	}
	if err := requireStateView(target); err != nil {
		return types.PreprocessOutput{}, err
	}

	where, err := equalityPredicates(del.Where, params)
	if err != nil {
		return types.PreprocessOutput{}, err
	}
	existing, err := lookupExisting(ctx, eng, where)
	if err != nil {
		return types.PreprocessOutput{}, err
	}

	cell := existingToCell(existing)
	for col, v := range where {
		cell[col] = v
	}
	delete(cell, "snapshot_content") // DELETE always writes a tombstone

	mr, err := buildMutationRow(cell)
	if err != nil {
		return types.PreprocessOutput{}, err
	}
	out := types.PreprocessOutput{MutationRows: []types.MutationRow{mr}}
	if err := out.Validate(); err != nil {
		return types.PreprocessOutput{}, err
	}
	return out, nil
}

// lookupExisting resolves the current effective row for an
// (entity_id, schema_key, file_id, version_id) WHERE tuple, so UPDATE/DELETE
// can carry forward the fields their statement never mentions.
func lookupExisting(ctx context.Context, eng *vtable.Engine, where map[string]types.Value) (*vtable.EffectiveRow, error) {
	for _, col := range identityColumns {
		if _, ok := where[col]; !ok {
			return nil, fmt.Errorf("%w: UPDATE/DELETE WHERE clause must pin %q", lixerr.ErrPlannerInvariant, col)
		}
	}
	entityID, _ := where["entity_id"].AsText()
	schemaKey, _ := where["schema_key"].AsText()
	fileID, _ := where["file_id"].AsText()
	versionID, _ := where["version_id"].AsText()

	row, found, err := vtable.ResolveEffective(ctx, eng.DB, entityID, schemaKey, fileID, versionID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no effective row for entity %q / schema %q / version %q",
			lixerr.ErrNotFound, entityID, schemaKey, versionID)
	}
	return row, nil
}

func existingToCell(row *vtable.EffectiveRow) map[string]types.Value {
	return map[string]types.Value{
		"entity_id":        types.Text(row.EntityID),
		"schema_key":       types.Text(row.SchemaKey),
		"file_id":          types.Text(row.FileID),
		"version_id":       types.Text(row.VersionID),
		"schema_version":   types.Text(row.SchemaVersion),
		"plugin_key":       types.Text(row.PluginKey),
		"writer_key":       types.Text(row.WriterKey),
		"snapshot_content": types.Text(row.SnapshotContent),
		"untracked":        types.Bool(row.Untracked),
	}
}
