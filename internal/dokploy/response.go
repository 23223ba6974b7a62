package dokploy

import (
	"encoding/json"
	"strings"
)

// Kind discriminates the shapes the platform API is known to answer with.
type Kind int

const (
	Absent Kind = iota
	String
	Object
	List
)

// Response is a tagged union over the heterogeneous reply shapes of the
// platform: a JSON object, a JSON array, or a bare (often quoted) string.
// Some endpoints acknowledge with `"ok"` or `true` instead of a document.
type Response struct {
	kind Kind
	str  string
	obj  map[string]any
	list []any
}

func AbsentResponse() Response                 { return Response{kind: Absent} }
func StringResponse(s string) Response         { return Response{kind: String, str: s} }
func ObjectResponse(m map[string]any) Response { return Response{kind: Object, obj: m} }
func ListResponse(l []any) Response            { return Response{kind: List, list: l} }

func (r Response) Kind() Kind          { return r.kind }
func (r Response) Str() string         { return r.str }
func (r Response) Obj() map[string]any { return r.obj }
func (r Response) List() []any         { return r.list }

// parseBody converts a raw response body into a Response. JSON objects and
// arrays keep their structure; everything else (including JSON scalars and
// plain text) becomes a trimmed bare string.
func parseBody(body []byte) Response {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return AbsentResponse()
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		switch v := decoded.(type) {
		case map[string]any:
			return ObjectResponse(v)
		case []any:
			return ListResponse(v)
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return StringResponse(s)
			}
			return AbsentResponse()
		case bool:
			if v {
				return StringResponse("true")
			}
			return StringResponse("false")
		case nil:
			return AbsentResponse()
		}
	}

	return StringResponse(strings.Trim(trimmed, `"`))
}
