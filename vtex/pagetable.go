package vtex

// PageState is where a page is in its residency cycle.
type PageState uint8

const (
	PageUnloaded PageState = iota
	// PagePending has an allocation and a queued bind.
	PagePending
	PageResident
	// PagePendingEvict has a queued unbind; its allocation is released
	// once the device is done with it.
	PagePendingEvict
)

func (s PageState) String() string {
	switch s {
	case PageUnloaded:
		return "unloaded"
	case PagePending:
		return "pending"
	case PageResident:
		return "resident"
	case PagePendingEvict:
		return "pending-evict"
	}
	return "unknown"
}

// Page is the residency record of one texture page. Records live as long as
// the texture; only their allocation comes and goes.
type Page struct {
	Index  int
	Mip    int
	Row    int
	Column int
	// Fixed pages are bound at creation and never evicted.
	Fixed bool
	State PageState

	alloc      Allocation
	hasAlloc   bool
	requiredBy map[int]struct{}
}

// Key is the page's processing order key.
func (p *Page) Key() PageKey {
	return PageKey{Mip: p.Mip, Column: p.Column, Row: p.Row}
}

// Allocation returns the page's memory slot, if it has one.
func (p *Page) Allocation() (Allocation, bool) {
	return p.alloc, p.hasAlloc
}

// Required reports whether anything needs the page resident.
func (p *Page) Required() bool {
	return p.Fixed || len(p.requiredBy) > 0
}

// RequiredBy returns the number of tiles requiring the page.
func (p *Page) RequiredBy() int {
	return len(p.requiredBy)
}

func (p *Page) attach(a Allocation) {
	p.alloc, p.hasAlloc = a, true
}

func (p *Page) detach() Allocation {
	a := p.alloc
	p.alloc, p.hasAlloc = Allocation{}, false
	return a
}

// Tile is one cell of the screen projected tile grid.
type Tile struct {
	OnScreen bool
	Mip      int
}

// PageTable maps texture pages to their allocations and tracks which screen
// tiles need which pages. It keeps two generations of the tile table:
// current is what is bound, next is this frame's estimate.
//
// Each generation has a single writer at a time; the table does no locking.
type PageTable struct {
	layout  *Layout
	pages   []Page
	current []Tile
	next    []Tile
	rows    int
	cols    int
}

// NewPageTable creates a record for every page of layout. Pages of the
// coarsest fixedLevels mip levels are marked fixed.
func NewPageTable(layout *Layout, fixedLevels, tileRows, tileCols int) *PageTable {
	t := &PageTable{
		layout: layout,
		pages:  make([]Page, layout.TotalPages),
	}

	firstFixed := len(layout.Levels) - fixedLevels
	for i := range t.pages {
		mip, row, col := layout.Locate(i)
		t.pages[i] = Page{
			Index:      i,
			Mip:        mip,
			Row:        row,
			Column:     col,
			Fixed:      mip >= firstFixed,
			requiredBy: make(map[int]struct{}),
		}
	}
	t.Resize(tileRows, tileCols)
	return t
}

// Layout returns the mip chain geometry.
func (t *PageTable) Layout() *Layout { return t.layout }

// Len is the total page count.
func (t *PageTable) Len() int { return len(t.pages) }

// Page returns the record of a page.
func (t *PageTable) Page(i int) *Page { return &t.pages[i] }

// TileGrid returns the tile grid dimensions.
func (t *PageTable) TileGrid() (rows, cols int) { return t.rows, t.cols }

// Current is the tile generation that matches what is bound.
func (t *PageTable) Current() []Tile { return t.current }

// Next is the tile generation being estimated for this frame.
func (t *PageTable) Next() []Tile { return t.next }

// Resize changes the tile grid and resets all frame state.
func (t *PageTable) Resize(tileRows, tileCols int) {
	t.rows, t.cols = tileRows, tileCols
	t.current = make([]Tile, tileRows*tileCols)
	t.next = make([]Tile, tileRows*tileCols)
	t.ResetFrame()
}

// ResetFrame clears both tile generations and the requirements of every
// non-fixed page.
func (t *PageTable) ResetFrame() {
	clear(t.current)
	clear(t.next)
	for i := range t.pages {
		if !t.pages[i].Fixed {
			clear(t.pages[i].requiredBy)
		}
	}
}

// Swap promotes next to current and clears next for the following frame.
func (t *PageTable) Swap() {
	t.current, t.next = t.next, t.current
	clear(t.next)
}

// TilePages calls fn for every page of level mip that the tile's texture
// region overlaps.
func (t *PageTable) TilePages(tile, mip int, fn func(page int)) {
	ty, tx := tile/t.cols, tile%t.cols
	lvl := t.layout.Levels[mip]

	r0, r1 := span(ty, t.rows, lvl.Height, t.layout.BlockHeight, lvl.Rows)
	c0, c1 := span(tx, t.cols, lvl.Width, t.layout.BlockWidth, lvl.Columns)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			fn(lvl.BaseIndex + r*lvl.Columns + c)
		}
	}
}

// span maps tile i of n over extent texels to the inclusive range of blocks
// it touches.
func span(i, n int, extent, block uint32, blocks int) (first, last int) {
	lo := uint64(i) * uint64(extent) / uint64(n)
	hi := (uint64(i+1)*uint64(extent) + uint64(n) - 1) / uint64(n)
	if hi > lo {
		hi--
	}
	first = min(int(lo/uint64(block)), blocks-1)
	last = min(int(hi/uint64(block)), blocks-1)
	return first, last
}

// require records that tile needs page. Fixed pages are not tracked.
func (t *PageTable) require(page, tile int) {
	p := &t.pages[page]
	if p.Fixed {
		return
	}
	p.requiredBy[tile] = struct{}{}
}

// unrequire drops tile's requirement on page.
func (t *PageTable) unrequire(page, tile int) {
	p := &t.pages[page]
	if p.Fixed {
		return
	}
	delete(p.requiredBy, tile)
}
