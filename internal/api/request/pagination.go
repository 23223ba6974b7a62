package request

import (
	"net/http"
	"strconv"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// ListParams holds common list query parameters.
type ListParams struct {
	Search string
	Status string
	Sort   string
	Order  string
	Limit  int
	Cursor string
}

// ParseListParams extracts pagination, sorting and filter parameters from
// the query string, applying defaults and clamping the limit.
func ParseListParams(r *http.Request, defaultSort string) ListParams {
	q := r.URL.Query()

	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	sort := q.Get("sort")
	if sort == "" {
		sort = defaultSort
	}

	return ListParams{
		Search: q.Get("search"),
		Status: q.Get("status"),
		Sort:   sort,
		Order:  q.Get("order"),
		Limit:  limit,
		Cursor: q.Get("cursor"),
	}
}
