package spempe

import "github.com/go-gl/mathgl/mgl64"

// VisibleState is the observable state a master replicates and a dummy
// renders: the engine treats this as the synchronized payload's shape for
// the purposes of full-vs-diff comparison and two-point interpolation,
// exercising the vector math §3's data model leaves as an assumed
// primitive. Concrete objects carrying richer state embed or convert to
// this for replication purposes.
type VisibleState struct {
	Position mgl64.Vec3
	Velocity mgl64.Vec3
}

// Lerp returns the linear interpolation of two VisibleStates at t in
// [0, 1], used by a dummy to render between its current and following
// buffered slot.
func Lerp(a, b VisibleState, t float64) VisibleState {
	return VisibleState{
		Position: lerp3(a.Position, b.Position, t),
		Velocity: lerp3(a.Velocity, b.Velocity, t),
	}
}

func lerp3(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
