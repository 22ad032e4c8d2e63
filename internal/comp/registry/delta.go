package registry

// DeltaKind classifies one registry mutation.
type DeltaKind int

const (
	OutputAdded DeltaKind = iota
	OutputRemoved
	SurfaceMapped
	SurfaceUnmapped
	SurfaceFocused
)

func (k DeltaKind) String() string {
	switch k {
	case OutputAdded:
		return "output_added"
	case OutputRemoved:
		return "output_removed"
	case SurfaceMapped:
		return "surface_mapped"
	case SurfaceUnmapped:
		return "surface_unmapped"
	case SurfaceFocused:
		return "surface_focused"
	}
	return "unknown"
}

// Delta describes one registry mutation. It carries identifiers only:
// by the time a subscriber looks at it, the entity may already be
// gone.
type Delta struct {
	Kind       DeltaKind
	Output     OutputID
	OutputName string
	Surface    SurfaceID
	Client     ClientID
}
