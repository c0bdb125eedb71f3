package trail

// Point is one 2D trail sample. Points are identity-distinct: two points
// with identical coordinates remain separate entries.
type Point struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp float64 `json:"timestamp"`
}

// Defaults for the trail window. The buffer keeps at most MaxPoints entries
// and drops everything older than Window seconds relative to the newest push.
const (
	DefaultMaxPoints     = 200
	DefaultWindowSeconds = 3.5
)

// Buffer is a time- and count-bounded sequence of recent trail points,
// oldest first. Not safe for concurrent use; the session serializes access.
type Buffer struct {
	maxPoints     int
	windowSeconds float64
	points        []Point
}

// NewBuffer creates a buffer with the given cap and time window in seconds.
// Non-positive values fall back to the defaults.
func NewBuffer(maxPoints int, windowSeconds float64) *Buffer {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	return &Buffer{maxPoints: maxPoints, windowSeconds: windowSeconds}
}

// Push appends p and prunes: first every point aged windowSeconds or more
// relative to p's timestamp, then the oldest points until the cap holds.
// Both prunes run on every push.
func (b *Buffer) Push(p Point) {
	b.points = append(b.points, p)

	// Full pass rather than a prefix scan: sources deliver mostly in order,
	// but an out-of-order timestamp must not shield older points behind it.
	cutoff := p.Timestamp - b.windowSeconds
	kept := b.points[:0]
	for _, pt := range b.points {
		if pt.Timestamp > cutoff {
			kept = append(kept, pt)
		}
	}
	b.points = kept

	if excess := len(b.points) - b.maxPoints; excess > 0 {
		b.points = append(b.points[:0], b.points[excess:]...)
	}
}

// Points returns a copy of the buffer contents, oldest first.
func (b *Buffer) Points() []Point {
	out := make([]Point, len(b.points))
	copy(out, b.points)
	return out
}

// Len returns the number of buffered points.
func (b *Buffer) Len() int {
	return len(b.points)
}

// Clear empties the buffer. Invoked on session stop and session start.
func (b *Buffer) Clear() {
	b.points = b.points[:0]
}
