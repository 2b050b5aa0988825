package records

import "errors"

var ErrInvalidCapacity = errors.New("records: page capacity must not be negative")

// ComputePages returns ceil(total/capacity). A capacity of zero means no row
// fits on the display and yields zero pages.
func ComputePages(total, capacity int) (int, error) {
	if capacity < 0 {
		return 0, ErrInvalidCapacity
	}
	if capacity == 0 || total <= 0 {
		return 0, nil
	}
	return (total + capacity - 1) / capacity, nil
}

// Slice returns items [page*capacity, min((page+1)*capacity, len)). An out of
// range page yields an empty slice; clamping is the caller's job.
func Slice[T any](items []T, page, capacity int) []T {
	if page < 0 || capacity <= 0 {
		return nil
	}
	start := page * capacity
	if start >= len(items) {
		return nil
	}
	end := min(start+capacity, len(items))
	return items[start:end]
}

// CapacityFor derives how many rows fit in a viewport of the given height.
func CapacityFor(viewportHeight, headerHeight, rowHeight int) int {
	if rowHeight <= 0 {
		return 0
	}
	usable := viewportHeight - headerHeight
	if usable <= 0 {
		return 0
	}
	return usable / rowHeight
}

// Pager tracks the current page over a collection of a known size.
type Pager struct {
	total    int
	capacity int
	pages    int
	current  int
}

func NewPager(total, capacity int) (*Pager, error) {
	pages, err := ComputePages(total, capacity)
	if err != nil {
		return nil, err
	}
	return &Pager{total: total, capacity: capacity, pages: pages}, nil
}

func (p *Pager) Pages() int   { return p.pages }
func (p *Pager) Current() int { return p.current }

func (p *Pager) First()    { p.Goto(0) }
func (p *Pager) Previous() { p.Goto(p.current - 1) }
func (p *Pager) Next()     { p.Goto(p.current + 1) }
func (p *Pager) Last()     { p.Goto(p.pages - 1) }

// Goto moves to page i, clamped to [0, pages-1].
func (p *Pager) Goto(i int) {
	if p.pages == 0 {
		p.current = 0
		return
	}
	p.current = max(0, min(i, p.pages-1))
}

// Window returns the 1-based positions of the first and last record on the
// current page together with the total, as shown under the grid
// ("requests 11 to 20 of 42"). An empty collection yields zeros.
func (p *Pager) Window() (from, to, total int) {
	if p.pages == 0 {
		return 0, 0, p.total
	}
	from = p.current*p.capacity + 1
	to = min((p.current+1)*p.capacity, p.total)
	return from, to, p.total
}
