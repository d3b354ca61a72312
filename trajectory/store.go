package trajectory

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Store holds trajectory nodes in strictly increasing time order. It is built once
// and then read concurrently; SetPose is only called by the optimizer between solves.
type Store struct {
	nodes []Node
}

// NewStore returns an empty trajectory store.
func NewStore() *Store {
	return &Store{}
}

// Add appends a node. Its timestamp must be strictly after the last stored node's.
func (s *Store) Add(n Node) error {
	if len(s.nodes) > 0 {
		last := s.nodes[len(s.nodes)-1].Time
		if !n.Time.After(last) {
			return errors.Errorf("node time %v is not after last node time %v", n.Time, last)
		}
	}
	s.nodes = append(s.nodes, n)
	return nil
}

// Len returns the number of stored nodes.
func (s *Store) Len() int {
	return len(s.nodes)
}

// At returns the node at index i.
func (s *Store) At(i int) Node {
	return s.nodes[i]
}

// Nodes returns a copy of the stored nodes.
func (s *Store) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// SetPose overwrites the planar pose of the node at index i, leaving its timestamp
// and gravity alignment untouched.
func (s *Store) SetPose(i int, pose Pose2D) {
	s.nodes[i].Pose = pose
}

// BracketIndex returns the index i such that nodes i and i+1 bracket time t, i.e.
// nodes[i].Time <= t <= nodes[i+1].Time. A t equal to the last node's timestamp
// brackets against the final pair. Times outside the stored span are an error.
func (s *Store) BracketIndex(t time.Time) (int, error) {
	if len(s.nodes) < 2 {
		return 0, errors.Errorf("cannot bracket time %v with %d nodes", t, len(s.nodes))
	}
	idx := sort.Search(len(s.nodes), func(i int) bool {
		return s.nodes[i].Time.After(t)
	})
	switch {
	case idx == 0:
		return 0, errors.Errorf("time %v is before the first node at %v", t, s.nodes[0].Time)
	case idx == len(s.nodes):
		last := s.nodes[len(s.nodes)-1].Time
		if t.Equal(last) {
			return len(s.nodes) - 2, nil
		}
		return 0, errors.Errorf("time %v is after the last node at %v", t, last)
	default:
		return idx - 1, nil
	}
}

// Bracket returns the pair of nodes bracketing time t.
func (s *Store) Bracket(t time.Time) (Node, Node, error) {
	i, err := s.BracketIndex(t)
	if err != nil {
		return Node{}, Node{}, err
	}
	return s.nodes[i], s.nodes[i+1], nil
}
