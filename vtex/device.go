package vtex

import "context"

// Memory is an opaque device memory handle returned by [Device.Allocate].
// A nil Memory in a [Bind] clears the binding of that region.
type Memory any

// Fence signals once the device finished a submission.
type Fence interface {
	// Signaled polls the fence without blocking.
	Signaled() bool
	// Wait blocks until the fence signals or ctx is done.
	Wait(ctx context.Context) error
}

// Device is the narrow slice of a graphics device the streamer needs.
//
// Submit queues binds on the device timeline; the streamer treats a
// successful Submit as the completion point of a bind, and only uses the
// returned Fence to decide when memory behind an unbind may be reused.
type Device interface {
	Allocate(size uint64, memoryTypeIndex uint32) (Memory, error)
	Free(mem Memory)
	Submit(binds []Bind) (Fence, error)
	WaitIdle() error
}

// Region is a texel rectangle inside one mip level of the texture.
type Region struct {
	Mip    uint32
	X, Y   uint32
	Width  uint32
	Height uint32
}

// Bind is a single page bind or unbind request.
type Bind struct {
	Page   int
	Region Region
	Memory Memory
	Offset uint64
}

// Unbind reports whether the request clears the page's backing.
func (b Bind) Unbind() bool { return b.Memory == nil }

// Extent is a two dimensional size in pixels or texels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Capabilities is what the device reports for a sparse-resident image.
type Capabilities struct {
	// BlockWidth and BlockHeight are the sparse block granularity in texels.
	BlockWidth  uint32
	BlockHeight uint32
	// MemoryTypeIndex is the memory type sectors are allocated from.
	MemoryTypeIndex uint32
}

// PageSize is the number of bytes backing one page.
func (c Capabilities) PageSize(bytesPerTexel uint32) uint64 {
	return uint64(c.BlockWidth) * uint64(c.BlockHeight) * uint64(bytesPerTexel)
}
