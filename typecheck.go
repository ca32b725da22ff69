package objbridge

import (
	"context"

	"github.com/xaionaro-go/objbridge/objsys"
	"github.com/xaionaro-go/objbridge/types"
)

// IsInstance reports whether h points at an instance of t (or of a
// subtype of t). It is total: a null handle is not an error, it is
// simply not an instance of anything, though it leaves a trace on the
// debug stream since it often indicates a bug upstream.
func (b *Bridge) IsInstance(ctx context.Context, h types.Handle, t objsys.TypeID) bool {
	if h.IsNull() {
		b.dbg.Logf(ctx, "Check failed: got a null pointer\n")
		return false
	}
	return b.System.IsA(h, t)
}
