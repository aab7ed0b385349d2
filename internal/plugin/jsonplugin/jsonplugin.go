// Package jsonplugin is a built-in detect_changes/apply_changes plugin for
// plain JSON document files: every addressable node (object, array, or
// scalar) in the tree becomes one entity keyed by its JSON Pointer (RFC
// 6901) path, so edits anywhere in the tree project down to the smallest
// affected entities rather than rewriting the whole document on every
// change.
//
// The upstream reference plugin this is modeled on (plugin-json-v2) is only
// present in the retrieval pack as its test suite, not its source — see
// DESIGN.md for the grounding note. This implementation follows the
// black-box contract that test suite exercises (JSON-Pointer-addressed
// entities, tombstones for removed nodes, full-document reconstruction from
// the merged entity set) rather than any internal algorithm.
package jsonplugin

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/lixdb/lix/internal/plugin"
)

// SchemaKey is the fixed schema key every entity this plugin emits is
// stored under.
const SchemaKey = "lix_json_node"

const schemaVersion = "1"

// nodeKind discriminates the three JSON shapes a pointer can resolve to.
// Recorded explicitly (rather than inferred from content) so an empty
// object, an empty array, and a null scalar are never confused during
// reconstruction.
type nodeKind string

const (
	kindObject nodeKind = "object"
	kindArray  nodeKind = "array"
	kindScalar nodeKind = "scalar"
)

type nodeContent struct {
	Kind   nodeKind        `json:"kind"`
	Keys   []string        `json:"keys,omitempty"`   // object: child key order
	Length int             `json:"length,omitempty"` // array: number of elements
	Value  json.RawMessage `json:"value,omitempty"`  // scalar: the literal value
}

// Plugin returns the registrable plugin.Plugin for this implementation.
func Plugin() plugin.Plugin {
	return plugin.Plugin{Key: SchemaKey, Detect: DetectChanges, Apply: ApplyChanges}
}

// DetectChanges diffs before (nil for a newly created file) against after,
// emitting one EntityChange per node whose content changed plus a tombstone
// for every node that existed in before and no longer exists in after.
func DetectChanges(before *plugin.File, after plugin.File) ([]plugin.EntityChange, error) {
	var beforeNodes map[string]nodeContent
	if before != nil {
		var err error
		beforeNodes, err = decodeTree(before.Data)
		if err != nil {
			return nil, err
		}
	}

	afterNodes, err := decodeTree(after.Data)
	if err != nil {
		return nil, err
	}

	var changes []plugin.EntityChange
	for pointer := range beforeNodes {
		if _, ok := afterNodes[pointer]; !ok {
			changes = append(changes, plugin.EntityChange{
				EntityID: pointer, SchemaKey: SchemaKey, SchemaVersion: schemaVersion,
			})
		}
	}

	pointers := make([]string, 0, len(afterNodes))
	for pointer := range afterNodes {
		pointers = append(pointers, pointer)
	}
	sort.Strings(pointers)

	for _, pointer := range pointers {
		afterNode := afterNodes[pointer]
		if beforeNode, ok := beforeNodes[pointer]; ok && nodesEqual(beforeNode, afterNode) {
			continue
		}
		encoded, err := json.Marshal(afterNode)
		if err != nil {
			return nil, plugin.Internal("encode node at %q: %v", pointer, err)
		}
		text := string(encoded)
		changes = append(changes, plugin.EntityChange{
			EntityID: pointer, SchemaKey: SchemaKey, SchemaVersion: schemaVersion,
			SnapshotContent: &text,
		})
	}

	return changes, nil
}

// ApplyChanges reconstructs a document's bytes from the full set of live
// (non-tombstoned) entity changes describing it. seed is only consulted
// when no root ("") entity is present in changes, in which case seed's
// bytes are returned unchanged.
func ApplyChanges(seed plugin.File, changes []plugin.EntityChange) ([]byte, error) {
	nodes := map[string]nodeContent{}
	for _, change := range changes {
		if change.SchemaKey != SchemaKey {
			continue
		}
		if change.SnapshotContent == nil {
			continue // tombstone: simply absent from the reconstruction map
		}
		var node nodeContent
		if err := json.Unmarshal([]byte(*change.SnapshotContent), &node); err != nil {
			return nil, plugin.Internal("decode node at %q: %v", change.EntityID, err)
		}
		nodes[change.EntityID] = node
	}

	if _, ok := nodes[""]; !ok {
		return seed.Data, nil
	}

	value, err := materialize(nodes, "")
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, plugin.Internal("encode reconstructed document: %v", err)
	}
	return encoded, nil
}

func materialize(nodes map[string]nodeContent, pointer string) (any, error) {
	node, ok := nodes[pointer]
	if !ok {
		return nil, plugin.Internal("missing node at %q during reconstruction", pointer)
	}
	switch node.Kind {
	case kindScalar:
		var value any
		if len(node.Value) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(node.Value, &value); err != nil {
			return nil, plugin.Internal("decode scalar at %q: %v", pointer, err)
		}
		return value, nil
	case kindObject:
		obj := make(map[string]any, len(node.Keys))
		for _, key := range node.Keys {
			child, err := materialize(nodes, childPointer(pointer, escapePointerToken(key)))
			if err != nil {
				return nil, err
			}
			obj[key] = child
		}
		return obj, nil
	case kindArray:
		arr := make([]any, node.Length)
		for i := range arr {
			child, err := materialize(nodes, childPointer(pointer, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			arr[i] = child
		}
		return arr, nil
	default:
		return nil, plugin.Internal("unknown node kind %q at %q", node.Kind, pointer)
	}
}

// decodeTree parses data as JSON and flattens every reachable node into a
// pointer -> nodeContent map.
func decodeTree(data []byte) (map[string]nodeContent, error) {
	if len(data) == 0 {
		data = []byte("null")
	}
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, plugin.InvalidInput("file.data must be valid JSON: %v", err)
	}
	nodes := map[string]nodeContent{}
	if err := walk(root, "", nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func walk(value any, pointer string, out map[string]nodeContent) error {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out[pointer] = nodeContent{Kind: kindObject, Keys: keys}
		for _, key := range keys {
			if err := walk(v[key], childPointer(pointer, escapePointerToken(key)), out); err != nil {
				return err
			}
		}
	case []any:
		out[pointer] = nodeContent{Kind: kindArray, Length: len(v)}
		for i, elem := range v {
			if err := walk(elem, childPointer(pointer, strconv.Itoa(i)), out); err != nil {
				return err
			}
		}
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return plugin.Internal("encode scalar at %q: %v", pointer, err)
		}
		out[pointer] = nodeContent{Kind: kindScalar, Value: encoded}
	}
	return nil
}

func nodesEqual(a, b nodeContent) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case kindObject:
		return stringsEqual(a.Keys, b.Keys)
	case kindArray:
		return a.Length == b.Length
	default:
		return string(a.Value) == string(b.Value)
	}
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func childPointer(parent, token string) string {
	return parent + "/" + token
}

// escapePointerToken escapes a raw object key into an RFC 6901 reference
// token: '~' -> "~0", then '/' -> "~1" (order matters, so an already-escaped
// '~1' is never re-escaped into "~01").
func escapePointerToken(key string) string {
	escaped := strings.ReplaceAll(key, "~", "~0")
	escaped = strings.ReplaceAll(escaped, "/", "~1")
	return escaped
}
