package kinematic

// This package includes the 2D vector helpers used to walk NPCs around a room.

import (
	"math"
)

// Vector is a point or displacement in room coordinates. Y grows downward.
type Vector struct {
	X, Y float64
}

func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vector) Scale(s float64) Vector {
	return Vector{X: v.X * s, Y: v.Y * s}
}

// Magnitude returns the length of the vector.
func (v Vector) Magnitude() float64 {
	return math.Hypot(v.X, v.Y)
}

// Distance returns the distance between two points.
func Distance(a, b Vector) float64 {
	return b.Sub(a).Magnitude()
}

// Radians returns the heading from a to b in radians, in (-π, π].
func Radians(a, b Vector) float64 {
	d := b.Sub(a)
	return math.Atan2(d.Y, d.X)
}

// Degrees returns the heading from a to b in degrees, in [0, 360).
func Degrees(a, b Vector) float64 {
	deg := Radians(a, b) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// StepToward moves from toward to by at most step, never overshooting.
func StepToward(from, to Vector, step float64) Vector {
	dist := Distance(from, to)
	if dist <= step || dist == 0 {
		return to
	}
	return from.Add(to.Sub(from).Scale(step / dist))
}

// Reached reports whether a is within tolerance of b.
func Reached(a, b Vector, tolerance float64) bool {
	return Distance(a, b) <= tolerance
}

// Clamp keeps v inside the rectangle [minX, maxX] x [minY, maxY].
func Clamp(v Vector, minX, minY, maxX, maxY float64) Vector {
	return Vector{
		X: math.Max(minX, math.Min(maxX, v.X)),
		Y: math.Max(minY, math.Min(maxY, v.Y)),
	}
}
