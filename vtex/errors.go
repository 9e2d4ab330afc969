package vtex

import "github.com/cockroachdb/errors"

// ErrAllocationFailure marks errors caused by the device refusing a sector
// allocation. The requesting page stays unloaded and is retried on a later
// frame while it is still required.
var ErrAllocationFailure = errors.New("vtex: device memory allocation failed")

func allocationFailure(err error, page int) error {
	return errors.Mark(errors.Wrapf(err, "allocating sector for page %d", page), ErrAllocationFailure)
}

// IsAllocationFailure reports whether err was caused by a failed sector allocation.
func IsAllocationFailure(err error) bool {
	return errors.Is(err, ErrAllocationFailure)
}
