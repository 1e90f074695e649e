package space

import "github.com/cockroachdb/errors"

var (
	// ErrMisaligned indicates an address or size that is not a multiple of the page size.
	ErrMisaligned = errors.New("space: address or size not page aligned")

	// ErrOutsideSpace indicates a range that is not contained in the address space.
	ErrOutsideSpace = errors.New("space: range outside address space")

	// ErrNotMapped indicates an unmap of a range that is not fully mapped.
	ErrNotMapped = errors.New("space: range not mapped")
)
