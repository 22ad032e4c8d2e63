package registry

import "fmt"

// StaleSurfaceError reports an operation against a surface ID whose
// surface has been destroyed, including IDs whose slot has since been
// recycled for a new surface.
type StaleSurfaceError struct {
	ID SurfaceID
}

func (err StaleSurfaceError) Error() string {
	return fmt.Sprintf("surface %#x is gone", err.ID.Key())
}

// UnknownReferenceError reports a reference to an entity that does not
// exist and never did, or an output that has been removed.
type UnknownReferenceError struct {
	Kind string // "output" or "surface"
	Key  uint64
}

func (err UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown %v reference %#x", err.Kind, err.Key)
}
