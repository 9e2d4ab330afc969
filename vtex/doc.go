// Package vtex streams a large sparse-resident texture through a small, fixed
// device memory budget.
//
// The texture's mip chain is cut into fixed-size pages. Each frame an
// [Estimator] projects a coarse mesh over the texture to decide which mip
// level every screen tile needs, a [Scheduler] diffs that against what is
// currently bound and turns the difference into bind and unbind operations,
// and a [SectorPool] hands out page-sized slots of device memory grouped into
// larger allocations.
//
// The package never talks to a graphics API directly. Everything device-side
// goes through the [Device] interface; the root vtstream package provides the
// Vulkan implementation.
package vtex
