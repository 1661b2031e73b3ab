package boosting

import (
	"math"
	"sort"
)

// Node is one tree node. Leaves carry the output value; internal nodes carry
// the split feature, threshold and the gain the split achieved.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Gain      float64 `json:"gain"`
	Leaf      bool    `json:"leaf"`
}

// Tree is a regression tree stored as a flat node array; index 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict routes one row to a leaf.
func (t *Tree) Predict(row []float64) float64 {
	idx := 0
	for !t.Nodes[idx].Leaf {
		n := t.Nodes[idx]
		if row[n.Feature] < n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
	return t.Nodes[idx].Value
}

// treeGrower fits a tree to residuals with exact greedy variance-reduction
// splits, bounded by depth, minimum leaf size and minimum split gain.
type treeGrower struct {
	x          [][]float64
	residual   []float64
	cols       []int // candidate feature subset for this tree
	maxDepth   int
	minSamples int
	minGain    float64
}

func (g *treeGrower) grow(rows []int) *Tree {
	t := &Tree{}
	g.build(t, rows, 0)
	return t
}

// build appends the subtree for rows and returns its node index.
func (g *treeGrower) build(t *Tree, rows []int, depth int) int {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Leaf: true, Value: meanAt(g.residual, rows)})

	if depth >= g.maxDepth || len(rows) < 2*g.minSamples {
		return idx
	}

	feature, threshold, gain := g.bestSplit(rows)
	if gain <= g.minGain {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if g.x[r][feature] < threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) < g.minSamples || len(right) < g.minSamples {
		return idx
	}

	t.Nodes[idx].Leaf = false
	t.Nodes[idx].Feature = feature
	t.Nodes[idx].Threshold = threshold
	t.Nodes[idx].Gain = gain
	t.Nodes[idx].Left = g.build(t, left, depth+1)
	t.Nodes[idx].Right = g.build(t, right, depth+1)
	return idx
}

// bestSplit scans the candidate features over sorted values, scoring each
// split by the reduction in residual sum of squares.
func (g *treeGrower) bestSplit(rows []int) (feature int, threshold, gain float64) {
	feature = -1

	var total, totalSq float64
	for _, r := range rows {
		total += g.residual[r]
		totalSq += g.residual[r] * g.residual[r]
	}
	n := float64(len(rows))
	parentScore := total * total / n

	order := make([]int, len(rows))
	for _, f := range g.cols {
		copy(order, rows)
		sort.Slice(order, func(a, b int) bool { return g.x[order[a]][f] < g.x[order[b]][f] })

		var leftSum float64
		for i := 0; i < len(order)-1; i++ {
			r := order[i]
			leftSum += g.residual[r]

			cur, next := g.x[r][f], g.x[order[i+1]][f]
			if cur == next {
				continue
			}
			nl := float64(i + 1)
			nr := n - nl
			if int(nl) < g.minSamples || int(nr) < g.minSamples {
				continue
			}

			rightSum := total - leftSum
			score := leftSum*leftSum/nl + rightSum*rightSum/nr - parentScore
			if score > gain {
				gain = score
				feature = f
				threshold = (cur + next) / 2
			}
		}
	}

	if feature < 0 {
		return -1, 0, 0
	}
	return feature, threshold, gain
}

func meanAt(vals []float64, rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += vals[r]
	}
	m := sum / float64(len(rows))
	if math.IsNaN(m) {
		return 0
	}
	return m
}
