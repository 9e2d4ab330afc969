package vtex

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
)

type fakeMemory int

type fakeFence struct {
	signaled bool
}

func (f *fakeFence) Signaled() bool { return f.signaled }

func (f *fakeFence) Wait(context.Context) error {
	f.signaled = true
	return nil
}

// fakeDevice records everything the streamer asks of it. Fences stay
// unsignaled while holdFences is set.
type fakeDevice struct {
	next       fakeMemory
	live       map[fakeMemory]bool
	allocs     int
	frees      int
	budget     int // sector allocations allowed, negative for unlimited
	submits    [][]Bind
	fences     []*fakeFence
	holdFences bool
	idleWaits  int
	failSubmit bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{live: make(map[fakeMemory]bool), budget: -1}
}

func (d *fakeDevice) Allocate(size uint64, memoryTypeIndex uint32) (Memory, error) {
	if d.budget == 0 {
		return nil, errors.New("out of device memory")
	}
	if d.budget > 0 {
		d.budget--
	}
	d.next++
	d.live[d.next] = true
	d.allocs++
	return d.next, nil
}

func (d *fakeDevice) Free(mem Memory) {
	delete(d.live, mem.(fakeMemory))
	d.frees++
}

func (d *fakeDevice) Submit(binds []Bind) (Fence, error) {
	if d.failSubmit {
		return nil, errors.New("device lost")
	}
	d.submits = append(d.submits, slices.Clone(binds))
	f := &fakeFence{signaled: !d.holdFences}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *fakeDevice) WaitIdle() error {
	d.idleWaits++
	for _, f := range d.fences {
		f.signaled = true
	}
	return nil
}

func (d *fakeDevice) signalAll() {
	for _, f := range d.fences {
		f.signaled = true
	}
}

func (d *fakeDevice) lastSubmit() []Bind {
	if len(d.submits) == 0 {
		return nil
	}
	return d.submits[len(d.submits)-1]
}
