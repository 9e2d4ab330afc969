package vtex

import (
	"slices"
	"strconv"
)

// SectorID names a sector in the pool's arena. IDs are never reused.
type SectorID uint32

func (id SectorID) String() string { return "sector-" + strconv.FormatUint(uint64(id), 10) }

// Allocation is a page's claim on one slot of a sector. The sector stays
// alive for as long as at least one page holds an allocation in it.
type Allocation struct {
	Sector SectorID
	Memory Memory
	Offset uint64
}

type sector struct {
	id     SectorID
	memory Memory
	// free slot offsets, ascending
	free  []uint64
	pages map[int]struct{}
}

// SectorPool hands out page-sized slots of device memory. Slots are grouped
// into sectors, one device allocation each.
//
// The pool only keeps sector IDs; pages own the sectors through their
// allocations. When the last page releases its slot the sector's memory is
// freed and the ID lapses. The pool is not safe for concurrent use.
type SectorPool struct {
	device          Device
	pageSize        uint64
	pagesPerSector  int
	memoryTypeIndex uint32

	arena  map[SectorID]*sector
	order  []SectorID
	nextID SectorID
	// set after a release; the next Acquire re-ranks before picking
	dirty bool
}

// NewSectorPool creates an empty pool. No device memory is allocated until
// the first Acquire.
func NewSectorPool(device Device, pageSize uint64, pagesPerSector int, memoryTypeIndex uint32) *SectorPool {
	return &SectorPool{
		device:          device,
		pageSize:        pageSize,
		pagesPerSector:  pagesPerSector,
		memoryTypeIndex: memoryTypeIndex,
		arena:           make(map[SectorID]*sector),
	}
}

// PageSize is the size in bytes of one slot.
func (p *SectorPool) PageSize() uint64 { return p.pageSize }

// Acquire reserves a slot for page. The front sector is reused while it has
// free slots; otherwise a new sector is allocated and moved to the front.
func (p *SectorPool) Acquire(page int) (Allocation, error) {
	if p.dirty {
		p.rank()
	}

	var s *sector
	if len(p.order) > 0 {
		if front, ok := p.arena[p.order[0]]; ok && len(front.free) > 0 {
			s = front
		}
	}
	if s == nil {
		var err error
		if s, err = p.newSector(); err != nil {
			return Allocation{}, allocationFailure(err, page)
		}
		p.order = slices.Insert(p.order, 0, s.id)
	}

	off := s.free[0]
	s.free = s.free[1:]
	s.pages[page] = struct{}{}
	return Allocation{Sector: s.id, Memory: s.memory, Offset: off}, nil
}

// Release returns page's slot to its sector. Releasing the last page of a
// sector frees the sector's device memory, so callers must only release
// once the device can no longer touch the slot.
func (p *SectorPool) Release(page int, a Allocation) {
	s, ok := p.arena[a.Sector]
	if !ok {
		Logger().Warn("vtex: release from dead sector", "page", page, "sector", a.Sector)
		return
	}
	if _, held := s.pages[page]; !held {
		Logger().Warn("vtex: release of page not held by sector", "page", page, "sector", a.Sector)
		return
	}

	delete(s.pages, page)
	i, _ := slices.BinarySearch(s.free, a.Offset)
	s.free = slices.Insert(s.free, i, a.Offset)
	p.dirty = true

	if len(s.pages) == 0 {
		p.device.Free(s.memory)
		delete(p.arena, s.id)
		Logger().Debug("vtex: sector freed", "sector", s.id)
	}
}

// Describe returns the number of live sectors.
func (p *SectorPool) Describe() int {
	return len(p.arena)
}

// SectorUsage reports the free slot count and the pages held by a sector.
// ok is false once the sector has been freed.
func (p *SectorPool) SectorUsage(id SectorID) (free int, pages []int, ok bool) {
	s, ok := p.arena[id]
	if !ok {
		return 0, nil, false
	}
	for page := range s.pages {
		pages = append(pages, page)
	}
	slices.Sort(pages)
	return len(s.free), pages, true
}

func (p *SectorPool) newSector() (*sector, error) {
	mem, err := p.device.Allocate(p.pageSize*uint64(p.pagesPerSector), p.memoryTypeIndex)
	if err != nil {
		return nil, err
	}

	p.nextID++
	s := &sector{
		id:     p.nextID,
		memory: mem,
		free:   make([]uint64, p.pagesPerSector),
		pages:  make(map[int]struct{}, p.pagesPerSector),
	}
	for i := range s.free {
		s.free[i] = uint64(i) * p.pageSize
	}
	p.arena[s.id] = s

	Logger().Debug("vtex: sector allocated", "sector", s.id, "bytes", p.pageSize*uint64(p.pagesPerSector))
	return s, nil
}

// rank drops lapsed IDs and orders the rest by free slots, most first.
func (p *SectorPool) rank() {
	p.order = slices.DeleteFunc(p.order, func(id SectorID) bool {
		_, ok := p.arena[id]
		return !ok
	})
	slices.SortStableFunc(p.order, func(a, b SectorID) int {
		return len(p.arena[b].free) - len(p.arena[a].free)
	})
	p.dirty = false
}
