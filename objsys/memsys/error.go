package memsys

import (
	"fmt"

	"github.com/xaionaro-go/objbridge/objsys"
)

type ErrUnknownType struct {
	Type objsys.TypeID
}

func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type: %d", e.Type)
}

type ErrTypeNameTaken struct {
	Name string
}

func (e ErrTypeNameTaken) Error() string {
	return fmt.Sprintf("type name is already registered: '%s'", e.Name)
}

type ErrBoxedMismatch struct {
	Parent string
	Name   string
}

func (e ErrBoxedMismatch) Error() string {
	return fmt.Sprintf("type '%s' and its parent '%s' disagree on being boxed", e.Name, e.Parent)
}

type ErrNotConstructible struct {
	Type objsys.TypeID
	Name string
}

func (e ErrNotConstructible) Error() string {
	return fmt.Sprintf("type '%s' is boxed; allocate it with NewBoxed instead", e.Name)
}

type ErrNotBoxed struct {
	Type objsys.TypeID
	Name string
}

func (e ErrNotBoxed) Error() string {
	return fmt.Sprintf("type '%s' is not boxed; construct it with NewObject instead", e.Name)
}
