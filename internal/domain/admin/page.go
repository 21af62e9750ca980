package admin

// DefaultPageSize is the number of rows per page when none is requested.
const DefaultPageSize = 10

// PageSizeOptions are the page sizes offered by the console.
var PageSizeOptions = []int{10, 25, 50}

// Page is one page of a paginated list.
type Page[T any] struct {
	Items       []T `json:"items"`
	TotalCount  int `json:"totalCount"`
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
}

// Range returns the 1-based positions of the first and last item on the
// page, as in "showing 11 to 20 of 45". Both are 0 for an empty list.
func (p Page[T]) Range(limit int) (start, end int) {
	if p.TotalCount == 0 || limit <= 0 {
		return 0, 0
	}
	page := p.CurrentPage
	if page < 1 {
		page = 1
	}
	start = (page-1)*limit + 1
	end = page * limit
	if end > p.TotalCount {
		end = p.TotalCount
	}
	return start, end
}

// HasNext reports whether a later page exists.
func (p Page[T]) HasNext() bool {
	return p.CurrentPage < p.TotalPages
}

// HasPrev reports whether an earlier page exists.
func (p Page[T]) HasPrev() bool {
	return p.CurrentPage > 1
}

// UserListParams selects a page of users. Search is a case-insensitive
// substring filter applied by the server.
type UserListParams struct {
	Page   int    `json:"page" validate:"min=1"`
	Limit  int    `json:"limit" validate:"min=1,max=100"`
	Search string `json:"search"`
}

// Normalize fills defaults for unset fields.
func (p UserListParams) Normalize(defaultLimit int) UserListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = defaultLimit
	}
	return p
}

// ApplicationListParams selects a page of applications.
// Status is a review state or "all".
type ApplicationListParams struct {
	Page   int    `json:"page" validate:"min=1"`
	Limit  int    `json:"limit" validate:"min=1,max=100"`
	Search string `json:"search"`
	Status string `json:"status" validate:"oneof=all pending reviewed approved rejected"`
}

// Normalize fills defaults for unset fields.
func (p ApplicationListParams) Normalize(defaultLimit int) ApplicationListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = defaultLimit
	}
	if p.Status == "" {
		p.Status = StatusFilterAll
	}
	return p
}
