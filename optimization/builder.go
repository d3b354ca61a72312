package optimization

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/posegraph/landmark"
	"go.viam.com/posegraph/optimization/costfunction"
	"go.viam.com/posegraph/spatialmath"
	"go.viam.com/posegraph/trajectory"
)

type buildConfig struct {
	constantNodes             bool
	fixedFirstNode            bool
	odometry                  bool
	odometryTranslationWeight float64
	odometryRotationWeight    float64
	loss                      Loss
}

// BuildOption configures how BuildLandmarkProblem assembles a problem.
type BuildOption func(*buildConfig)

// WithConstantNodes keeps every trajectory node fixed, so only the landmark
// estimates move.
func WithConstantNodes() BuildOption {
	return func(c *buildConfig) {
		c.constantNodes = true
	}
}

// WithFixedFirstNode pins the first trajectory node, removing the global gauge
// freedom of the graph.
func WithFixedFirstNode() BuildOption {
	return func(c *buildConfig) {
		c.fixedFirstNode = true
	}
}

// WithOdometryConstraints adds a relative pose term between each pair of
// consecutive nodes, taking the relative pose implied by their current estimates as
// the observation.
func WithOdometryConstraints(translationWeight, rotationWeight float64) BuildOption {
	return func(c *buildConfig) {
		c.odometry = true
		c.odometryTranslationWeight = translationWeight
		c.odometryRotationWeight = rotationWeight
	}
}

// WithLoss applies the given robust loss to every residual term.
func WithLoss(loss Loss) BuildOption {
	return func(c *buildConfig) {
		c.loss = loss
	}
}

// LandmarkProblem couples a problem with the stores its parameter blocks were
// seeded from, so optimized values can be read back out.
type LandmarkProblem struct {
	*Problem

	trajectoryStore   *trajectory.Store
	landmarkStore     *landmark.Store
	nodeBlocks        []*ParameterBlock
	rotationBlocks    map[string]*ParameterBlock
	translationBlocks map[string]*ParameterBlock
}

// BuildLandmarkProblem assembles the least-squares problem tying a trajectory to
// the landmarks observed along it: one parameter block per node pose, a rotation
// and a translation block per landmark, and one residual term per observation.
// Observations whose time the trajectory cannot bracket are an error.
func BuildLandmarkProblem(trajectoryStore *trajectory.Store, landmarkStore *landmark.Store, opts ...BuildOption) (*LandmarkProblem, error) {
	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p := NewProblem()
	lp := &LandmarkProblem{
		Problem:           p,
		trajectoryStore:   trajectoryStore,
		landmarkStore:     landmarkStore,
		rotationBlocks:    map[string]*ParameterBlock{},
		translationBlocks: map[string]*ParameterBlock{},
	}

	for i := 0; i < trajectoryStore.Len(); i++ {
		node := trajectoryStore.At(i)
		var blockOpts []ParameterBlockOption
		if cfg.constantNodes || (cfg.fixedFirstNode && i == 0) {
			blockOpts = append(blockOpts, WithConstant())
		}
		b := p.AddParameterBlock([]float64{node.Pose.X, node.Pose.Y, node.Pose.Theta}, blockOpts...)
		lp.nodeBlocks = append(lp.nodeBlocks, b)
	}

	if cfg.odometry {
		for i := 1; i < trajectoryStore.Len(); i++ {
			observed := relativePose2D(trajectoryStore.At(i-1).Pose, trajectoryStore.At(i).Pose)
			cost := costfunction.NewRelativePoseCostFunction(observed, cfg.odometryTranslationWeight, cfg.odometryRotationWeight)
			if err := p.AddResidualBlock(cost, cfg.loss, lp.nodeBlocks[i-1], lp.nodeBlocks[i]); err != nil {
				return nil, err
			}
		}
	}

	for _, id := range landmarkStore.IDs() {
		node, _ := landmarkStore.Node(id)
		rotationBlock := p.AddParameterBlock(append([]float64(nil), node.Rotation[:]...), WithNormalization(NormalizeQuaternion))
		translationBlock := p.AddParameterBlock(append([]float64(nil), node.Translation[:]...))
		lp.rotationBlocks[id] = rotationBlock
		lp.translationBlocks[id] = translationBlock

		for _, obs := range node.Observations {
			idx, err := trajectoryStore.BracketIndex(obs.Time)
			if err != nil {
				return nil, errors.Wrapf(err, "cannot place observation of landmark %q", id)
			}
			cost := costfunction.NewLandmarkCostFunction(obs, trajectoryStore.At(idx), trajectoryStore.At(idx+1))
			if err := p.AddResidualBlock(cost, cfg.loss, lp.nodeBlocks[idx], lp.nodeBlocks[idx+1], rotationBlock, translationBlock); err != nil {
				return nil, err
			}
		}
	}
	return lp, nil
}

// relativePose2D returns the pose of to expressed in from's frame.
func relativePose2D(from, to trajectory.Pose2D) trajectory.Pose2D {
	dx := to.X - from.X
	dy := to.Y - from.Y
	sin, cos := math.Sincos(from.Theta)
	return trajectory.Pose2D{
		X:     cos*dx + sin*dy,
		Y:     -sin*dx + cos*dy,
		Theta: to.Theta - from.Theta,
	}
}

// NodePose reads the current pose of node i out of its parameter block.
func (lp *LandmarkProblem) NodePose(i int) trajectory.Pose2D {
	v := lp.nodeBlocks[i].Values()
	return trajectory.Pose2D{X: v[0], Y: v[1], Theta: v[2]}
}

// LandmarkPose reads the current pose estimate of a landmark out of its parameter
// blocks.
func (lp *LandmarkProblem) LandmarkPose(id string) (spatialmath.Pose, bool) {
	rotationBlock, ok := lp.rotationBlocks[id]
	if !ok {
		return nil, false
	}
	r := rotationBlock.Values()
	tr := lp.translationBlocks[id].Values()
	return spatialmath.NewPose(
		r3.Vector{X: tr[0], Y: tr[1], Z: tr[2]},
		spatialmath.NewOrientationFromQuaternion(quat.Number{Real: r[0], Imag: r[1], Jmag: r[2], Kmag: r[3]}),
	), true
}

// Apply writes the optimized values back into the stores the problem was built
// from.
func (lp *LandmarkProblem) Apply() {
	for i := range lp.nodeBlocks {
		lp.trajectoryStore.SetPose(i, lp.NodePose(i))
	}
	for _, id := range lp.landmarkStore.IDs() {
		if pose, ok := lp.LandmarkPose(id); ok {
			lp.landmarkStore.SetPoseEstimate(id, pose)
		}
	}
}
