package v1alpha1

// Permission is the set of operations allowed on a transport path.
type Permission string

const (
	// Read allows attaching to the view served on a path.
	Read Permission = "Read"
	// Write allows submitting changes to the roots feeding the view served on a path.
	Write Permission = "Write"
	// ReadWrite allows both.
	ReadWrite Permission = "ReadWrite"
	// NoPermission allows nothing.
	NoPermission Permission = ""
)

func (p Permission) CanRead() bool  { return p == Read || p == ReadWrite }
func (p Permission) CanWrite() bool { return p == Write || p == ReadWrite }

// Intersect returns the operations allowed by both p and other.
func (p Permission) Intersect(other Permission) Permission {
	r := p.CanRead() && other.CanRead()
	w := p.CanWrite() && other.CanWrite()
	switch {
	case r && w:
		return ReadWrite
	case r:
		return Read
	case w:
		return Write
	default:
		return NoPermission
	}
}
