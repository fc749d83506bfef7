package road

import "math"

// Pose is a world position (x east, y north, metres) and heading (radians,
// counter-clockwise from east).
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Offset shifts the pose sideways by d metres to the right of its heading.
func (p Pose) Offset(d float64) Pose {
	return Pose{
		X:       p.X + d*math.Sin(p.Heading),
		Y:       p.Y - d*math.Cos(p.Heading),
		Heading: p.Heading,
	}
}

// Trajectory maps arc length to a centerline pose.
type Trajectory interface {
	Length() float64
	At(u float64) Pose
}

// Line is a straight centerline starting at (X0, Y0).
type Line struct {
	X0, Y0  float64
	Heading float64
	Len     float64
}

func (l Line) Length() float64 { return l.Len }

func (l Line) At(u float64) Pose {
	return Pose{
		X:       l.X0 + u*math.Cos(l.Heading),
		Y:       l.Y0 + u*math.Sin(l.Heading),
		Heading: l.Heading,
	}
}

// Arc is a circular centerline around (CX, CY). Start is the polar angle of
// the first point; Sweep is signed (positive is counter-clockwise).
type Arc struct {
	CX, CY float64
	Radius float64
	Start  float64
	Sweep  float64
}

func (a Arc) Length() float64 { return a.Radius * math.Abs(a.Sweep) }

func (a Arc) At(u float64) Pose {
	dir := 1.0
	if a.Sweep < 0 {
		dir = -1
	}
	theta := a.Start + dir*u/a.Radius
	return Pose{
		X:       a.CX + a.Radius*math.Cos(theta),
		Y:       a.CY + a.Radius*math.Sin(theta),
		Heading: normalizeAngle(theta + dir*math.Pi/2),
	}
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// Rect is an axis-aligned rectangle in world coordinates.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Contains reports whether (x, y) lies inside or on the edge of r.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// rectAround returns the bounding box of the strip between two centerline
// poses, halfWidth to either side.
func rectAround(a, b Pose, halfWidth float64) Rect {
	r := Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, p := range []Pose{a.Offset(halfWidth), a.Offset(-halfWidth), b.Offset(halfWidth), b.Offset(-halfWidth)} {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}
