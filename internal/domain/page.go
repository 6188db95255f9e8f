package domain

// DefaultPageSize is the number of posts in a page window.
const DefaultPageSize = 10

// PageWindow is a contiguous slice of the post sequence plus boundary flags.
// Posts are newest first, so older posts live on higher page numbers.
type PageWindow struct {
	Items    []Post
	Page     int
	HasOlder bool
	HasNewer bool
}

// Page is a PageWindow as seen by a particular session.
type Page struct {
	PageWindow
	Role   Role
	IsEdit bool
}

// TotalPages returns the number of pages needed for n posts.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return (n + pageSize - 1) / pageSize
}

// Paginate computes the window for the requested page over all. The page is
// clamped into [1, TotalPages]; an empty sequence always yields page 1 with
// no items. Items is a copy of the window, so later appends to the store do
// not affect it.
func Paginate(all []Post, requested, pageSize int) PageWindow {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	page := requested
	total := TotalPages(len(all), pageSize)
	if page > total {
		page = total
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(all))
	items := make([]Post, 0, end-start)
	if start < end {
		items = append(items, all[start:end]...)
	}

	return PageWindow{
		Items:    items,
		Page:     page,
		HasOlder: end < len(all),
		HasNewer: page > 1,
	}
}
