package vmregion

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidArgument reports a zero size, a bad alignment or a misaligned
	// fixed address. No state is touched.
	ErrInvalidArgument = errors.New("vmregion: invalid argument")

	// ErrOverflow reports that addr+size wraps the address type.
	ErrOverflow = errors.New("vmregion: address overflow")

	// ErrOutOfMemory reports that no free range can hold the request, or that
	// node storage for a split or insert could not be obtained.
	ErrOutOfMemory = errors.New("vmregion: out of memory")
)

// outOfMemory ties a node pool failure to ErrOutOfMemory while keeping the
// pool error as the cause.
func outOfMemory(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrOutOfMemory)
}
