// handle.go defines the Handle type: an opaque reference to a native object.

package types

import (
	"fmt"
)

// Handle is the address of a native object. It is opaque to this module:
// we never dereference it, we only pass it back to the owning object system.
type Handle uintptr

// HandleNull is the absent value.
const HandleNull Handle = 0

func (h Handle) IsNull() bool {
	return h == HandleNull
}

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uintptr(h))
}
