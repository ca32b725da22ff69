// closer.go defines the small lifecycle interfaces shared across the project.

package types

import (
	"context"
)

type Closer interface {
	Close(context.Context) error
}

// Syncer waits until everything accepted so far has been carried out.
type Syncer interface {
	Sync(context.Context) error
}
