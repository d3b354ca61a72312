package landmark

import (
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/posegraph/spatialmath"
)

// Node collects everything known about one landmark: its observations and the
// current pose estimate as a unit quaternion (w, x, y, z) plus a translation. The
// estimate components are kept as flat arrays so the optimizer can treat them as
// parameter blocks directly.
type Node struct {
	ID           string
	Observations []Observation
	Rotation     [4]float64
	Translation  [3]float64
}

// PoseEstimate returns the node's current pose estimate.
func (n *Node) PoseEstimate() spatialmath.Pose {
	rotation := quat.Number{Real: n.Rotation[0], Imag: n.Rotation[1], Jmag: n.Rotation[2], Kmag: n.Rotation[3]}
	return spatialmath.NewPose(
		r3.Vector{X: n.Translation[0], Y: n.Translation[1], Z: n.Translation[2]},
		spatialmath.NewOrientationFromQuaternion(rotation),
	)
}

// Store holds landmark nodes keyed by ID. It is built once and then read
// concurrently; SetPoseEstimate is only called by the optimizer between solves.
type Store struct {
	nodes map[string]*Node
}

// NewStore returns an empty landmark store.
func NewStore() *Store {
	return &Store{nodes: map[string]*Node{}}
}

// AddObservation records a sighting of the landmark with the given ID, creating the
// landmark with an identity pose estimate on first sight.
func (s *Store) AddObservation(id string, obs Observation) {
	n, ok := s.nodes[id]
	if !ok {
		n = &Node{ID: id, Rotation: [4]float64{1, 0, 0, 0}}
		s.nodes[id] = n
	}
	n.Observations = append(n.Observations, obs)
}

// SetPoseEstimate overwrites the pose estimate of the landmark with the given ID,
// creating the landmark if it has no observations yet. The pose's rotation is
// normalized before storing.
func (s *Store) SetPoseEstimate(id string, pose spatialmath.Pose) {
	n, ok := s.nodes[id]
	if !ok {
		n = &Node{ID: id}
		s.nodes[id] = n
	}
	rotation := spatialmath.Normalize(pose.Orientation().Quaternion())
	n.Rotation = [4]float64{rotation.Real, rotation.Imag, rotation.Jmag, rotation.Kmag}
	pt := pose.Point()
	n.Translation = [3]float64{pt.X, pt.Y, pt.Z}
}

// Node returns the landmark with the given ID, if present.
func (s *Store) Node(id string) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// IDs returns all landmark IDs in ascending order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored landmarks.
func (s *Store) Len() int {
	return len(s.nodes)
}
