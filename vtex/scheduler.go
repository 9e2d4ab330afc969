package vtex

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	lin "github.com/xlab/linmath"
)

// FrameReport summarises what one Update or Apply changed.
type FrameReport struct {
	Frame uint64
	// Loaded pages got an allocation and a bind this frame.
	Loaded []int
	// Evicted pages got an unbind this frame; their memory is released later.
	Evicted []int
	// Failed pages are required but could not get memory. They are retried.
	Failed []int
	// Released counts evicted pages whose memory went back to the pool.
	Released   int
	OnScreen   int
	Degenerate int
	Sectors    int
}

// Stats is a snapshot of residency across the whole page table.
type Stats struct {
	Resident     int
	PendingEvict int
	Waiting      int
	Fixed        int
	Sectors      int
}

type pendingRelease struct {
	fence Fence
	pages []int
}

// Scheduler drives a texture's residency frame by frame: it estimates which
// pages the view needs, diffs that against what is bound and issues the
// binds, allocations and releases that close the gap.
//
// All page table and pool mutation happens on the goroutine calling the
// Scheduler's methods.
type Scheduler struct {
	cfg       Config
	device    Device
	table     *PageTable
	pool      *SectorPool
	estimator *Estimator

	// required pages without memory: failed allocations and pages required
	// again while their eviction is in flight
	waiting  map[int]struct{}
	releases []pendingRelease
	frame    uint64
}

// NewScheduler lays out the texture's pages, then allocates and binds every
// page of the fixed mip levels.
func NewScheduler(device Device, cfg Config, caps Capabilities) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout, err := NewLayout(cfg.TextureWidth, cfg.TextureHeight, caps.BlockWidth, caps.BlockHeight, cfg.MipLevels)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:       cfg,
		device:    device,
		table:     NewPageTable(layout, cfg.FixedMipLevels, cfg.TileRows, cfg.TileColumns),
		pool:      NewSectorPool(device, caps.PageSize(cfg.BytesPerTexel), cfg.PagesPerSector, caps.MemoryTypeIndex),
		estimator: NewEstimator(cfg.TileRows, cfg.TileColumns, int(cfg.MipLevels), cfg.Workers),
		waiting:   make(map[int]struct{}),
	}
	Logger().Info("vtex: layout computed",
		"width", cfg.TextureWidth, "height", cfg.TextureHeight,
		"levels", cfg.MipLevels, "pages", layout.TotalPages,
		"page_size", s.pool.PageSize())

	if err := s.populateFixed(); err != nil {
		return nil, err
	}
	return s, nil
}

// populateFixed binds every fixed page up front.
func (s *Scheduler) populateFixed() error {
	var fixed []int
	for i := 0; i < s.table.Len(); i++ {
		if s.table.Page(i).Fixed {
			fixed = append(fixed, i)
		}
	}
	if len(fixed) == 0 {
		return nil
	}

	binds := make([]Bind, 0, len(fixed))
	for _, i := range fixed {
		a, err := s.pool.Acquire(i)
		if err != nil {
			s.rollbackLoads(fixed[:len(binds)])
			return errors.Wrap(err, "populating fixed mip levels")
		}
		p := s.table.Page(i)
		p.attach(a)
		p.State = PagePending
		binds = append(binds, s.bindFor(p))
	}
	if _, err := s.device.Submit(binds); err != nil {
		s.rollbackLoads(fixed)
		return errors.Wrap(err, "binding fixed mip levels")
	}
	for _, i := range fixed {
		s.table.Page(i).State = PageResident
	}

	Logger().Info("vtex: fixed pages resident", "pages", len(fixed), "sectors", s.pool.Describe())
	return nil
}

// Table exposes the page table for inspection.
func (s *Scheduler) Table() *PageTable { return s.table }

// Pool exposes the sector pool for inspection.
func (s *Scheduler) Pool() *SectorPool { return s.pool }

// Estimator exposes the mip estimator.
func (s *Scheduler) Estimator() *Estimator { return s.estimator }

// Update runs one full frame: project the mesh with mvp over the screen,
// estimate tile requirements and apply them.
func (s *Scheduler) Update(ctx context.Context, mvp *lin.Mat4x4, screen Extent) (FrameReport, error) {
	texture := Extent{Width: s.cfg.TextureWidth, Height: s.cfg.TextureHeight}
	if err := s.estimator.Project(ctx, mvp, texture, screen); err != nil {
		return FrameReport{Frame: s.frame}, errors.Wrap(err, "projecting mesh")
	}
	degenerate := s.estimator.Estimate(s.table.Next())

	report, err := s.commit()
	report.Degenerate = degenerate
	return report, err
}

// Apply commits an externally estimated tile table, which must hold one
// entry per tile in row-major order.
func (s *Scheduler) Apply(tiles []Tile) (FrameReport, error) {
	next := s.table.Next()
	if len(tiles) != len(next) {
		return FrameReport{Frame: s.frame}, errors.Newf("tile table has %d entries, want %d", len(tiles), len(next))
	}
	levels := len(s.table.Layout().Levels)
	for i, t := range tiles {
		if t.OnScreen && (t.Mip < 0 || t.Mip >= levels) {
			return FrameReport{Frame: s.frame}, errors.Newf("tile %d requires mip %d, want [0, %d)", i, t.Mip, levels)
		}
	}
	copy(next, tiles)
	return s.commit()
}

// Resize changes the tile grid. All tile requirements are dropped, so
// non-fixed pages are evicted on the next frame unless required again.
func (s *Scheduler) Resize(tileRows, tileCols int) {
	s.cfg.TileRows, s.cfg.TileColumns = tileRows, tileCols
	s.table.Resize(tileRows, tileCols)
	s.estimator = NewEstimator(tileRows, tileCols, int(s.cfg.MipLevels), s.cfg.Workers)
	for i := 0; i < s.table.Len(); i++ {
		if p := s.table.Page(i); !p.Fixed && p.State == PageResident {
			s.waiting[i] = struct{}{}
		}
	}
}

func (s *Scheduler) commit() (FrameReport, error) {
	s.frame++
	report := FrameReport{Frame: s.frame}
	report.Released = s.collect()

	touched := s.diff(&report)
	for i := range s.waiting {
		touched[i] = struct{}{}
	}

	var loads, evicts []int
	for i := range touched {
		p := s.table.Page(i)
		if p.Fixed {
			continue
		}
		switch {
		case p.Required() && p.State == PageUnloaded:
			loads = append(loads, i)
		case p.Required() && p.State == PagePendingEvict:
			s.waiting[i] = struct{}{}
		case !p.Required() && p.State == PageResident:
			evicts = append(evicts, i)
			delete(s.waiting, i)
		default:
			delete(s.waiting, i)
		}
	}
	s.sortPages(loads)
	s.sortPages(evicts)

	binds := make([]Bind, 0, len(loads)+len(evicts))
	for _, i := range loads {
		a, err := s.pool.Acquire(i)
		if err != nil {
			Logger().Warn("vtex: page load deferred", "page", i, "err", err)
			report.Failed = append(report.Failed, i)
			s.waiting[i] = struct{}{}
			continue
		}
		p := s.table.Page(i)
		p.attach(a)
		p.State = PagePending
		delete(s.waiting, i)
		report.Loaded = append(report.Loaded, i)
		binds = append(binds, s.bindFor(p))
	}
	for _, i := range evicts {
		p := s.table.Page(i)
		p.State = PagePendingEvict
		report.Evicted = append(report.Evicted, i)
		binds = append(binds, Bind{Page: i, Region: s.table.Layout().Region(i)})
	}

	if len(binds) > 0 {
		fence, err := s.device.Submit(binds)
		if err != nil {
			s.rollbackLoads(report.Loaded)
			for _, i := range report.Evicted {
				s.table.Page(i).State = PageResident
				s.waiting[i] = struct{}{}
			}
			s.table.Swap()
			report.Failed = append(report.Failed, report.Loaded...)
			report.Loaded, report.Evicted = nil, nil
			return report, errors.Wrapf(err, "submitting %d binds", len(binds))
		}
		for _, i := range report.Loaded {
			s.table.Page(i).State = PageResident
		}
		if len(report.Evicted) > 0 {
			s.releases = append(s.releases, pendingRelease{fence: fence, pages: report.Evicted})
		}
	}
	s.table.Swap()

	report.Sectors = s.pool.Describe()
	Logger().Debug("vtex: frame committed",
		"frame", s.frame, "loaded", len(report.Loaded), "evicted", len(report.Evicted),
		"failed", len(report.Failed), "released", report.Released, "sectors", report.Sectors)
	return report, nil
}

// diff moves tile requirements from the current generation to the next one
// and returns every page whose requirement set changed.
func (s *Scheduler) diff(report *FrameReport) map[int]struct{} {
	touched := make(map[int]struct{})
	cur, next := s.table.Current(), s.table.Next()
	for t := range next {
		o, n := cur[t], next[t]
		if n.OnScreen {
			report.OnScreen++
		}
		if o == n {
			continue
		}
		if o.OnScreen {
			s.table.TilePages(t, o.Mip, func(i int) {
				s.table.unrequire(i, t)
				touched[i] = struct{}{}
			})
		}
		if n.OnScreen {
			s.table.TilePages(t, n.Mip, func(i int) {
				s.table.require(i, t)
				touched[i] = struct{}{}
			})
		}
	}
	return touched
}

// collect releases evictions the device is done with.
func (s *Scheduler) collect() int {
	if len(s.releases) == 0 {
		return 0
	}

	released := 0
	if s.cfg.ReleasePolicy == ReleaseOnIdle {
		if err := s.device.WaitIdle(); err != nil {
			Logger().Warn("vtex: wait idle failed, deferring releases", "err", err)
			return 0
		}
		for _, r := range s.releases {
			released += s.release(r.pages)
		}
		s.releases = s.releases[:0]
		return released
	}

	kept := s.releases[:0]
	for _, r := range s.releases {
		if r.fence == nil || r.fence.Signaled() {
			released += s.release(r.pages)
			continue
		}
		kept = append(kept, r)
	}
	clear(s.releases[len(kept):])
	s.releases = kept
	return released
}

// Drain blocks until every in-flight eviction has been released.
func (s *Scheduler) Drain(ctx context.Context) error {
	for len(s.releases) > 0 {
		r := s.releases[0]
		if r.fence != nil {
			if err := r.fence.Wait(ctx); err != nil {
				return errors.Wrap(err, "waiting for eviction fence")
			}
		}
		s.release(r.pages)
		s.releases = s.releases[1:]
	}
	return nil
}

// Close unbinds every page, fixed ones included, and returns all memory to
// the device.
func (s *Scheduler) Close(ctx context.Context) error {
	if err := s.Drain(ctx); err != nil {
		return err
	}

	var binds []Bind
	var pages []int
	var prev []PageState
	for i := 0; i < s.table.Len(); i++ {
		p := s.table.Page(i)
		if _, ok := p.Allocation(); !ok {
			continue
		}
		prev = append(prev, p.State)
		p.State = PagePendingEvict
		pages = append(pages, i)
		binds = append(binds, Bind{Page: i, Region: s.table.Layout().Region(i)})
	}
	if len(binds) == 0 {
		return nil
	}

	fence, err := s.device.Submit(binds)
	if err != nil {
		for j, i := range pages {
			s.table.Page(i).State = prev[j]
		}
		return errors.Wrap(err, "unbinding pages")
	}
	if fence != nil {
		if err := fence.Wait(ctx); err != nil {
			return errors.Wrap(err, "waiting for unbind fence")
		}
	}
	s.release(pages)
	s.table.ResetFrame()
	clear(s.waiting)
	return nil
}

// Stats counts pages by state.
func (s *Scheduler) Stats() Stats {
	st := Stats{Waiting: len(s.waiting), Sectors: s.pool.Describe()}
	for i := 0; i < s.table.Len(); i++ {
		p := s.table.Page(i)
		if p.Fixed {
			st.Fixed++
		}
		switch p.State {
		case PageResident:
			st.Resident++
		case PagePendingEvict:
			st.PendingEvict++
		}
	}
	return st
}

func (s *Scheduler) release(pages []int) int {
	n := 0
	for _, i := range pages {
		p := s.table.Page(i)
		if p.State != PagePendingEvict {
			continue
		}
		s.pool.Release(i, p.detach())
		p.State = PageUnloaded
		if p.Required() && !p.Fixed {
			s.waiting[i] = struct{}{}
		}
		n++
	}
	return n
}

func (s *Scheduler) rollbackLoads(pages []int) {
	for _, i := range pages {
		p := s.table.Page(i)
		if _, ok := p.Allocation(); ok {
			s.pool.Release(i, p.detach())
		}
		p.State = PageUnloaded
		if p.Required() && !p.Fixed {
			s.waiting[i] = struct{}{}
		}
	}
}

func (s *Scheduler) bindFor(p *Page) Bind {
	return Bind{
		Page:   p.Index,
		Region: s.table.Layout().Region(p.Index),
		Memory: p.alloc.Memory,
		Offset: p.alloc.Offset,
	}
}

func (s *Scheduler) sortPages(pages []int) {
	slices.SortFunc(pages, func(a, b int) int {
		return s.table.Page(a).Key().Compare(s.table.Page(b).Key())
	})
}
