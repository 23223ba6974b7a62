package dokploy

import (
	"sort"
	"strings"
)

// idKeys is the priority-ordered list of key names the platform uses for
// resource identifiers, depending on endpoint and version.
var idKeys = []string{
	"projectId",
	"applicationId",
	"appId",
	"id",
	"_id",
	"project_id",
	"application_id",
}

// ExtractID pulls a canonical resource identifier out of a platform response.
// The boolean is false when no identifier could be found; callers must treat
// that as a hard failure, not an empty success.
//
// Strings are trimmed of quotes and whitespace. Objects are probed with the
// known id keys, then one level into a nested "data" object, and as a last
// resort the first string field in key order that looks like an identifier
// (no whitespace, at least 6 characters) is used. Keys are walked sorted so
// the same response always yields the same id.
func ExtractID(resp Response) (string, bool) {
	switch resp.Kind() {
	case String:
		s := strings.Trim(strings.TrimSpace(resp.Str()), `"`)
		if s == "" {
			return "", false
		}
		return s, true

	case Object:
		obj := resp.Obj()
		if id, ok := probeKeys(obj); ok {
			return id, true
		}
		if data, ok := obj["data"].(map[string]any); ok {
			if id, ok := probeKeys(data); ok {
				return id, true
			}
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s, ok := obj[k].(string)
			if !ok {
				continue
			}
			if len(s) >= 6 && !strings.ContainsAny(s, " \t\n\r") {
				return s, true
			}
		}
		return "", false

	default:
		return "", false
	}
}

func probeKeys(obj map[string]any) (string, bool) {
	for _, key := range idKeys {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
