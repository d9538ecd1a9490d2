package api

import (
	"net/http"
	"strconv"
)

// page is the parsed page/limit query of a list endpoint.
type page struct {
	Page   int
	Limit  int
	Offset int
}

// listResponse wraps a list with pagination metadata.
type listResponse struct {
	Data    interface{} `json:"data"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
	Total   int         `json:"total"`
	HasMore bool        `json:"has_more"`
}

// parsePage reads page and limit, clamping limit to [1, maxLimit].
func parsePage(r *http.Request, defaultLimit, maxLimit int) page {
	p, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if p < 1 {
		p = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page{Page: p, Limit: limit, Offset: (p - 1) * limit}
}

func newListResponse(data interface{}, p page, total int) listResponse {
	return listResponse{
		Data:    data,
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   total,
		HasMore: p.Offset+p.Limit < total,
	}
}
