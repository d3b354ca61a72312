// Package trajectory stores the timestamped 2D robot poses a pose graph is built
// over. Each node carries a planar pose plus a gravity-alignment rotation; together
// they embed the node into 3D space for comparison against landmark observations.
package trajectory

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/posegraph/spatialmath"
)

// Pose2D is a planar pose: position in the global frame and heading in radians.
type Pose2D struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Node is one trajectory sample. GravityAlignment corrects the node's local frame to
// a common vertical reference and must be a unit quaternion; it is estimated outside
// the pose graph and stays constant during optimization.
type Node struct {
	Time             time.Time
	Pose             Pose2D
	GravityAlignment quat.Number
}

// NewNode returns a node with an identity gravity alignment.
func NewNode(t time.Time, pose Pose2D) Node {
	return Node{Time: t, Pose: pose, GravityAlignment: quat.Number{Real: 1}}
}

// EmbeddedPose returns the node's pose embedded in 3D space: the heading rotation
// composed with the gravity alignment, positioned at (x, y, 0).
func (n Node) EmbeddedPose() spatialmath.Pose {
	yaw := quat.Number{Real: math.Cos(n.Pose.Theta / 2), Kmag: math.Sin(n.Pose.Theta / 2)}
	rotation := spatialmath.Normalize(quat.Mul(yaw, n.GravityAlignment))
	return spatialmath.NewPose(
		r3.Vector{X: n.Pose.X, Y: n.Pose.Y},
		spatialmath.NewOrientationFromQuaternion(rotation),
	)
}

// InterpolationParameter returns how far t lies between the two nodes as a plain
// fraction of the time span: 0 at prev, 1 at next. Values outside [0,1] indicate t
// outside the span; a degenerate span yields Inf or NaN, which is the caller's
// contract to avoid.
func InterpolationParameter(prev, next Node, t time.Time) float64 {
	return t.Sub(prev.Time).Seconds() / next.Time.Sub(prev.Time).Seconds()
}
