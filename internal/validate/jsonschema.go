// Package validate implements a restricted, hand-rolled JSON-schema-shaped
// validator for snapshot content. No JSON-schema library exists anywhere in
// the retrieval pack (confirmed across every example repo's go.mod), so
// this is built directly on encoding/json in the teacher's own manual
// struct-validation idiom (internal/types.ValidateWithCustom in the
// teacher repo hand-walks a struct's fields and accumulates error
// messages the same way this package hand-walks a schema document).
package validate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lixdb/lix/internal/lixerr"
)

// Schema is the subset of JSON Schema this engine actually needs to
// enforce: type, properties/required, additionalProperties, items, enum.
// Anything else present in a stored schema document is accepted but
// ignored — our validator is intentionally not a general-purpose engine.
type Schema struct {
	Type                 string             `json:"type"`
	Properties           map[string]*Schema `json:"properties"`
	Required             []string           `json:"required"`
	AdditionalProperties *bool              `json:"additionalProperties"`
	Items                *Schema            `json:"items"`
	Enum                 []any              `json:"enum"`
}

// ParseSchema decodes a JSON Schema document's validation-relevant subset.
func ParseSchema(doc []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, lixerr.Wrap("parse json schema document", err)
	}
	return &s, nil
}

// ValidateContent validates the decoded JSON value content against schema,
// returning an error naming the failing JSON Pointer path on the first
// violation, matching spec.md §7's "citing the failing path" requirement.
func ValidateContent(schema *Schema, content []byte) error {
	var value any
	if err := json.Unmarshal(content, &value); err != nil {
		return fmt.Errorf("%w: snapshot content is not valid JSON: %v", lixerr.ErrSchemaInvalid, err)
	}
	return validateNode(schema, value, "")
}

func validateNode(schema *Schema, value any, path string) error {
	if schema == nil {
		return nil
	}
	if len(schema.Enum) > 0 && !enumContains(schema.Enum, value) {
		return schemaErr(path, "value is not one of the enumerated options")
	}
	if schema.Type != "" {
		if err := checkType(schema.Type, value, path); err != nil {
			return err
		}
	}
	switch v := value.(type) {
	case map[string]any:
		for _, req := range schema.Required {
			if _, ok := v[req]; !ok {
				return schemaErr(joinPath(path, req), "required property is missing")
			}
		}
		if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
			for key := range v {
				if _, declared := schema.Properties[key]; !declared {
					return schemaErr(joinPath(path, key), "additional property is not allowed")
				}
			}
		}
		// Deterministic order keeps error reporting stable across runs.
		keys := make([]string, 0, len(schema.Properties))
		for key := range schema.Properties {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child, present := v[key]
			if !present {
				continue
			}
			if err := validateNode(schema.Properties[key], child, joinPath(path, key)); err != nil {
				return err
			}
		}
	case []any:
		if schema.Items != nil {
			for i, item := range v {
				if err := validateNode(schema.Items, item, fmt.Sprintf("%s/%d", path, i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkType(want string, value any, path string) error {
	switch want {
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return schemaErr(path, "expected an object")
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return schemaErr(path, "expected an array")
		}
	case "string":
		if _, ok := value.(string); !ok {
			return schemaErr(path, "expected a string")
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return schemaErr(path, "expected a number")
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return schemaErr(path, "expected an integer")
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return schemaErr(path, "expected a boolean")
		}
	case "null":
		if value != nil {
			return schemaErr(path, "expected null")
		}
	}
	return nil
}

func enumContains(options []any, value any) bool {
	encoded, _ := json.Marshal(value)
	for _, opt := range options {
		optEncoded, _ := json.Marshal(opt)
		if string(encoded) == string(optEncoded) {
			return true
		}
	}
	return false
}

func schemaErr(path, msg string) error {
	if path == "" {
		path = "/"
	}
	return fmt.Errorf("%w: %s at %q", lixerr.ErrSchemaInvalid, msg, path)
}

func joinPath(base, segment string) string {
	return base + "/" + segment
}

// JSONPointerGet resolves a JSON Pointer (e.g. "/nested/prop") against a
// decoded JSON value, used by primary-key and unique-key extraction.
func JSONPointerGet(value any, pointer string) (any, bool) {
	if pointer == "" || pointer == "/" {
		return value, true
	}
	segments := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	cur := value
	for _, seg := range segments {
		seg = strings.ReplaceAll(seg, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
