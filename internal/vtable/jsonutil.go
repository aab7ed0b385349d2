package vtable

import "github.com/tidwall/gjson"

// jsonStringField extracts a top-level string field from a JSON document
// without a full unmarshal, using gjson.
func jsonStringField(content, field string) (string, bool) {
	res := gjson.Get(content, field)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}
