//go:build !linux

package runtime

import "errors"

// pinCurrentThread does not pin outside Linux; it returns an error. BSD-
// family kernels run the functional (slower) fallback mode spec.md §1
// describes, without explicit CPU pinning.
func pinCurrentThread(cpu int) error {
	return errors.New("runtime: CPU pinning is only supported on Linux")
}
