package api

import (
	"maps"
	"net/url"
	"strconv"
)

// QueryParams are the lot list filters sent with every list request.
// Keys with an empty value are not sent.
type QueryParams map[string]string

// Values returns the non-empty parameters as url.Values.
func (p QueryParams) Values() url.Values {
	v := make(url.Values, len(p))
	for key, value := range p {
		if value == "" {
			continue
		}
		v.Set(key, value)
	}
	return v
}

// Encode returns the query string in sorted key order.
func (p QueryParams) Encode() string {
	return p.Values().Encode()
}

// With returns a copy of p with key set to value.
func (p QueryParams) With(key, value string) QueryParams {
	out := make(QueryParams, len(p)+1)
	maps.Copy(out, p)
	out[key] = value
	return out
}

// Page returns the page filter, or 1 when unset or invalid.
func (p QueryParams) Page() int {
	n, err := strconv.Atoi(p["page"])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// PaginationQuery returns the query string for page of the current filters.
func PaginationQuery(filters QueryParams, page int) string {
	return filters.With("page", strconv.Itoa(page)).Encode()
}
