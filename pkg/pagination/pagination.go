package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	CountParam  = "_count"
	OffsetParam = "_offset"
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// IsReserved reports whether a query parameter controls pagination rather
// than naming a search key.
func IsReserved(name string) bool {
	return name == CountParam || name == OffsetParam
}

// FromContext reads _count and _offset. A missing or non-positive _count
// falls back to DefaultLimit, values above MaxLimit are clamped, and a
// negative or malformed _offset is 0.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam(CountParam), c.QueryParam(OffsetParam))
}

// Parse applies the FromContext rules to raw parameter values.
func Parse(count, offset string) Params {
	limit, _ := strconv.Atoi(count)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	off, _ := strconv.Atoi(offset)
	if off < 0 {
		off = 0
	}

	return Params{Limit: limit, Offset: off}
}

// Window returns the [start, end) bounds of the page within total items.
func (p Params) Window(total int) (int, int) {
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return start, end
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}
