package tabular

import (
	"fmt"
	"sort"
)

// Node is one node of a flattened regression tree. Leaves have Feature = -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

// Tree is a regression tree; Nodes[0] is the root
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Ensemble is least-squares gradient boosting over regression trees
type Ensemble struct {
	Base         float64 `json:"base"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []Tree  `json:"trees"`
	Width        int     `json:"width"`
}

// BoostConfig shapes training
type BoostConfig struct {
	Trees          int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
}

// Boost fits an ensemble on rows X (n × width) and targets y
func Boost(X [][]float64, y []float64, cfg BoostConfig) (*Ensemble, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("need matching non-empty X and y, got %d and %d", len(X), len(y))
	}
	width := len(X[0])
	for _, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("ragged feature matrix")
		}
	}

	var sum float64
	for _, v := range y {
		sum += v
	}
	e := &Ensemble{Base: sum / float64(len(y)), LearningRate: cfg.LearningRate, Width: width}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = e.Base
	}
	residual := make([]float64, len(y))
	idx := make([]int, len(y))

	for m := 0; m < cfg.Trees; m++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
			idx[i] = i
		}

		b := &treeBuilder{X: X, y: residual, maxDepth: cfg.MaxDepth, minLeaf: cfg.MinSamplesLeaf}
		b.grow(idx, 0)
		tree := Tree{Nodes: b.nodes}

		for i := range y {
			pred[i] += e.LearningRate * tree.predict(X[i])
		}
		e.Trees = append(e.Trees, tree)
	}

	return e, nil
}

// Predict evaluates the ensemble on one feature vector
func (e *Ensemble) Predict(x []float64) (float64, error) {
	if e == nil || len(e.Trees) == 0 {
		return 0, fmt.Errorf("empty ensemble")
	}
	if len(x) != e.Width {
		return 0, fmt.Errorf("feature width %d, model expects %d", len(x), e.Width)
	}
	out := e.Base
	for i := range e.Trees {
		out += e.LearningRate * e.Trees[i].predict(x)
	}
	return out, nil
}

type treeBuilder struct {
	X        [][]float64
	y        []float64
	maxDepth int
	minLeaf  int
	nodes    []Node
}

// grow appends the subtree for idx and returns its node index
func (b *treeBuilder) grow(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.mean(idx)})

	if depth >= b.maxDepth || len(idx) < 2*b.minLeaf {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return self
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

// bestSplit maximizes the reduction in squared error over all features
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += b.y[i]
	}

	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0
	order := make([]int, n)

	for f := 0; f < len(b.X[idx[0]]); f++ {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.y[order[k]]
			nl := k + 1
			nr := n - nl
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			lo, hi := b.X[order[k]][f], b.X[order[k+1]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			// SSE 감소량 = Σl²/nl + Σr²/nr - Σ²/n
			gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - total*total/float64(n)
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (lo + hi) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
