//go:build !linux && !darwin

package vmregion

import "os"

func hostPageSize() uint64 {
	return uint64(os.Getpagesize())
}
