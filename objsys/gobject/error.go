package gobject

import (
	"fmt"
)

// ErrNotLoaded is returned when the library has not been loaded yet.
type ErrNotLoaded struct{}

func (e ErrNotLoaded) Error() string {
	return "the GObject library is not loaded"
}

// ErrLibraryNotFound is returned when no candidate name resolves to a
// loadable libgobject-2.0.
type ErrLibraryNotFound struct {
	Candidates []string
}

func (e ErrLibraryNotFound) Error() string {
	return fmt.Sprintf("unable to locate the GObject library; tried: %v", e.Candidates)
}

// ErrPropsUnsupported is returned by NewObject when construction
// properties are passed: this backend does not marshal values.
type ErrPropsUnsupported struct{}

func (e ErrPropsUnsupported) Error() string {
	return "this backend does not support construction properties"
}

// ErrConstructFailed is returned when the native constructor returns a
// null pointer.
type ErrConstructFailed struct {
	Type string
}

func (e ErrConstructFailed) Error() string {
	return fmt.Sprintf("the native constructor returned a null pointer for type '%s'", e.Type)
}
