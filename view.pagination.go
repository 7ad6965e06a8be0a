package main

// booksVisiblePages is the width of the sliding page window of the books list.
const booksVisiblePages = 5

// PageItem is one control of a pagination bar. An ellipsis item has no page.
type PageItem struct {
	Page     int  `json:"page,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Current  bool `json:"current,omitempty"`
}

// PageRange is the "showing From to To of Total" line.
type PageRange struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Total int `json:"total"`
}

// PageView is the pagination block attached to list responses.
type PageView struct {
	Window     []PageItem `json:"window"`
	Range      PageRange  `json:"range"`
	HasPrev    bool       `json:"hasPrev"`
	HasNext    bool       `json:"hasNext"`
	Consistent bool       `json:"consistent"`
}

// ClampPage keeps a requested page inside [1, total].
func ClampPage(page, total int) int {
	if total < 1 {
		return 1
	}
	if page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}

// EllipsisPageWindow lists every page when there are at most seven.
// Otherwise it keeps the first and last pages, the neighbours of the
// current one, and ellipses where pages are skipped.
func EllipsisPageWindow(current, total int) []PageItem {
	if total < 1 {
		return []PageItem{}
	}
	current = ClampPage(current, total)

	if total <= 7 {
		return pageRun(1, total, current)
	}

	items := []PageItem{{Page: 1, Current: current == 1}}
	if current > 4 {
		items = append(items, PageItem{Ellipsis: true})
	}
	start := max(2, current-1)
	end := min(total-1, current+1)
	items = append(items, pageRun(start, end, current)...)
	if current < total-3 {
		items = append(items, PageItem{Ellipsis: true})
	}
	return append(items, PageItem{Page: total, Current: current == total})
}

// SlidingPageWindow shows up to width consecutive pages centered on the
// current one, shifted to stay inside [1, total].
func SlidingPageWindow(current, total, width int) []PageItem {
	if total < 1 || width < 1 {
		return []PageItem{}
	}
	current = ClampPage(current, total)

	start := max(1, current-width/2)
	end := min(total, start+width-1)
	if end-start+1 < width {
		start = max(1, end-width+1)
	}
	return pageRun(start, end, current)
}

func pageRun(from, to, current int) []PageItem {
	items := make([]PageItem, 0, to-from+1)
	for p := from; p <= to; p++ {
		items = append(items, PageItem{Page: p, Current: p == current})
	}
	return items
}

// ShowingRange computes the displayed items interval of the current page.
func ShowingRange(p Pagination) PageRange {
	if p.Total <= 0 || p.Limit <= 0 {
		return PageRange{}
	}
	page := max(p.Page, 1)
	if p.TotalPage > 0 {
		page = min(page, p.TotalPage)
	}
	return PageRange{
		From:  min((page-1)*p.Limit+1, p.Total),
		To:    min(page*p.Limit, p.Total),
		Total: p.Total,
	}
}

// newPageView describes the page the window shows: a requested page past
// the known range is rendered as the last one.
func newPageView(p Pagination, window []PageItem) PageView {
	p.Page = ClampPage(p.Page, p.TotalPage)
	return PageView{
		Window:     window,
		Range:      ShowingRange(p),
		HasPrev:    p.Page > 1,
		HasNext:    p.Page < p.TotalPage,
		Consistent: p.Consistent(),
	}
}

// NewBooksPageView builds the pagination block of the books list.
func NewBooksPageView(p *Pagination) *PageView {
	if p == nil {
		return nil
	}
	v := newPageView(*p, SlidingPageWindow(p.Page, p.TotalPage, booksVisiblePages))
	return &v
}

// NewSummaryPageView builds the pagination block of the borrow summary.
func NewSummaryPageView(p *Pagination) *PageView {
	if p == nil {
		return nil
	}
	v := newPageView(*p, EllipsisPageWindow(p.Page, p.TotalPage))
	return &v
}
