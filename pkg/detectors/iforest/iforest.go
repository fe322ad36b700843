// Package iforest implements the Isolation Forest algorithm and the
// density-based detector built on it.
package iforest

import (
	"errors"
	"math"
	"math/rand"
	"sync"
)

// Model errors.
var (
	ErrEmptyData  = errors.New("empty training data")
	ErrNotTrained = errors.New("model not trained")
)

// Forest implements unsupervised anomaly scoring using isolation trees.
type Forest struct {
	mu sync.RWMutex

	// Configuration
	nTrees     int
	sampleSize int
	seed       int64

	// Trained model
	trees    []*iTree
	maxDepth int
	trained  bool

	// Expected path length for the fitted sample size
	avgPathLength float64
}

// iTree represents a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	left  *node
	right *node

	// number of samples that reached this leaf
	size int
}

// Option configures a Forest.
type Option func(*Forest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *Forest) {
		if n > 0 {
			f.nTrees = n
		}
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *Forest) {
		if n > 0 {
			f.sampleSize = n
		}
	}
}

// WithSeed sets the random seed. Every Fit restarts from it, so repeated
// fits on the same data build the same trees.
func WithSeed(seed int64) Option {
	return func(f *Forest) {
		f.seed = seed
	}
}

// New creates a new Forest with the given options.
func New(opts ...Option) *Forest {
	f := &Forest{
		nTrees:     100,
		sampleSize: 256,
		seed:       42,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit trains the forest on data, one row per sample.
func (f *Forest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 || len(data[0]) == 0 {
		return ErrEmptyData
	}

	rng := rand.New(rand.NewSource(f.seed))
	nSamples := len(data)
	nFeatures := len(data[0])

	sampleSize := min(f.sampleSize, nSamples)
	f.maxDepth = int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))

	f.trees = make([]*iTree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = &iTree{root: f.buildNode(rng, sample, nFeatures, 0)}
	}

	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.trained = true

	return nil
}

func (f *Forest) buildNode(rng *rand.Rand, data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	feature := rng.Intn(nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{size: n}
	}

	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(rng, leftData, nFeatures, depth+1),
		right:        f.buildNode(rng, rightData, nFeatures, depth+1),
	}
}

// Predict returns anomaly scores in [0, 1] for the given samples.
// Higher scores separate more easily from the bulk of the data.
func (f *Forest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, ErrNotTrained
	}

	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.score(sample)
	}
	return scores, nil
}

// PredictOne returns the anomaly score for a single sample.
func (f *Forest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, ErrNotTrained
	}
	return f.score(sample), nil
}

func (f *Forest) score(sample []float64) float64 {
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	if f.avgPathLength == 0 {
		return 0.5
	}
	// s(x, n) = 2^(-E[h(x)] / c(n))
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, with H(i) ~ ln(i) + Euler-Mascheroni
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Trees returns the configured number of trees.
func (f *Forest) Trees() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nTrees
}
