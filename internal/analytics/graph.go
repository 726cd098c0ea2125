package analytics

import (
	"math"

	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

const (
	InfluenceHigh   = "high_influence"
	InfluenceMedium = "medium_influence"
	InfluenceLow    = "low_influence"
)

// DefaultEigenvectorMaxIterations caps the power iteration so the metrics
// engine always terminates on degenerate or disconnected graphs.
const DefaultEigenvectorMaxIterations = 1000

const eigenvectorTolerance = 1e-6

// NodeMetrics holds per-node centrality results.
type NodeMetrics struct {
	Betweenness    float64 `json:"betweenness_centrality"`
	Eigenvector    float64 `json:"eigenvector_centrality"`
	Degree         int     `json:"degree"`
	InfluenceGroup string  `json:"influence_group"`
}

// NetworkMetadata holds global graph properties.
type NetworkMetadata struct {
	NodeCount           int     `json:"total_nodes"`
	EdgeCount           int     `json:"total_connections"`
	Density             float64 `json:"network_density"`
	AvgClustering       float64 `json:"avg_clustering"`
	ConnectedComponents int     `json:"connected_components"`
}

// GraphMetrics is the annotated result of one metrics pass over a Network.
type GraphMetrics struct {
	Nodes map[string]NodeMetrics
	Meta  NetworkMetadata
}

// ComputeGraphMetrics computes density, clustering, component count, and
// betweenness/eigenvector centrality for the given network. Degenerate
// inputs (fewer than 2 nodes, or no edges) yield zero-valued metrics rather
// than an error; new or single-respondent surveys are a normal case.
//
// Path-based betweenness runs on the unweighted topology: edge weights here
// encode connection strength, not distance, so feeding them into a
// shortest-path primitive would invert their meaning.
func ComputeGraphMetrics(n Network, eigenvectorMaxIter int) GraphMetrics {
	if eigenvectorMaxIter <= 0 {
		eigenvectorMaxIter = DefaultEigenvectorMaxIterations
	}

	metrics := GraphMetrics{
		Nodes: make(map[string]NodeMetrics, len(n.Nodes)),
		Meta: NetworkMetadata{
			NodeCount: len(n.Nodes),
			EdgeCount: len(n.Edges),
		},
	}

	degrees := make(map[string]int, len(n.Nodes))
	for _, e := range n.Edges {
		degrees[e.Source]++
		degrees[e.Target]++
	}

	if len(n.Nodes) < 2 || len(n.Edges) == 0 {
		// Every node is its own component; all scores are defined as 0.
		metrics.Meta.ConnectedComponents = len(n.Nodes)
		for _, id := range n.Nodes {
			metrics.Nodes[id] = NodeMetrics{
				Degree:         degrees[id],
				InfluenceGroup: InfluenceLow,
			}
		}
		return metrics
	}

	g := simple.NewUndirectedGraph()
	idToNode := make(map[string]int64, len(n.Nodes))
	nodeToID := make(map[int64]string, len(n.Nodes))

	for _, id := range n.Nodes {
		node := g.NewNode()
		g.AddNode(node)
		idToNode[id] = node.ID()
		nodeToID[node.ID()] = id
	}

	for _, e := range n.Edges {
		g.SetEdge(simple.Edge{
			F: simple.Node(idToNode[e.Source]),
			T: simple.Node(idToNode[e.Target]),
		})
	}

	nodeCount := float64(len(n.Nodes))
	metrics.Meta.Density = float64(len(n.Edges)) / (nodeCount * (nodeCount - 1) / 2)
	metrics.Meta.AvgClustering = averageClustering(n)
	metrics.Meta.ConnectedComponents = len(topo.ConnectedComponents(g))

	betweenness := network.Betweenness(g)

	// Brandes accumulation over all sources counts each unordered pair from
	// both endpoints, so (n-1)(n-2) is the normalization constant for an
	// undirected graph.
	betweennessScale := 0.0
	if nodeCount > 2 {
		betweennessScale = 1.0 / ((nodeCount - 1) * (nodeCount - 2))
	}

	eigenvector := eigenvectorCentrality(n, eigenvectorMaxIter)

	for _, id := range n.Nodes {
		b := betweenness[idToNode[id]] * betweennessScale

		metrics.Nodes[id] = NodeMetrics{
			Betweenness:    b,
			Eigenvector:    eigenvector[id],
			Degree:         degrees[id],
			InfluenceGroup: influenceGroup(b),
		}
	}

	return metrics
}

func influenceGroup(betweenness float64) string {
	switch {
	case betweenness > 0.10:
		return InfluenceHigh
	case betweenness > 0.05:
		return InfluenceMedium
	default:
		return InfluenceLow
	}
}

// averageClustering is the mean local clustering coefficient: for each node,
// the fraction of its neighbor pairs that are themselves connected. Nodes
// with degree < 2 contribute 0.
func averageClustering(n Network) float64 {
	if len(n.Nodes) == 0 {
		return 0
	}

	adjacency := make(map[string]map[string]struct{}, len(n.Nodes))
	for _, id := range n.Nodes {
		adjacency[id] = make(map[string]struct{})
	}
	for _, e := range n.Edges {
		adjacency[e.Source][e.Target] = struct{}{}
		adjacency[e.Target][e.Source] = struct{}{}
	}

	total := 0.0
	for _, id := range n.Nodes {
		neighbors := make([]string, 0, len(adjacency[id]))
		for nb := range adjacency[id] {
			neighbors = append(neighbors, nb)
		}

		k := len(neighbors)
		if k < 2 {
			continue
		}

		links := 0
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				if _, ok := adjacency[neighbors[i]][neighbors[j]]; ok {
					links++
				}
			}
		}

		total += float64(2*links) / float64(k*(k-1))
	}

	return total / float64(len(n.Nodes))
}

// eigenvectorCentrality runs power iteration over the weighted adjacency,
// treating normalized edge weights as connection strength. The iteration
// uses the shifted operator (A + I): plain A*x oscillates with period 2 on
// bipartite graphs (every path and star network), while the shift preserves
// the dominant eigenvector's ordering and guarantees convergence there.
// Iteration stops at convergence or at the iteration cap; non-convergence
// returns the best effort at the cap, which is sufficient for ranking. An
// edgeless graph yields all zeros.
func eigenvectorCentrality(n Network, maxIter int) map[string]float64 {
	scores := make(map[string]float64, len(n.Nodes))
	if len(n.Edges) == 0 {
		for _, id := range n.Nodes {
			scores[id] = 0
		}
		return scores
	}

	weights := make(map[string]map[string]float64, len(n.Nodes))
	for _, e := range n.Edges {
		if weights[e.Source] == nil {
			weights[e.Source] = make(map[string]float64)
		}
		if weights[e.Target] == nil {
			weights[e.Target] = make(map[string]float64)
		}
		weights[e.Source][e.Target] += e.Weight
		weights[e.Target][e.Source] += e.Weight
	}

	x := make(map[string]float64, len(n.Nodes))
	for _, id := range n.Nodes {
		x[id] = 1.0 / float64(len(n.Nodes))
	}

	tolerance := float64(len(n.Nodes)) * eigenvectorTolerance

	for iter := 0; iter < maxIter; iter++ {
		next := make(map[string]float64, len(x))
		for id, score := range x {
			next[id] += score
			for nb, w := range weights[id] {
				next[nb] += score * w
			}
		}

		norm := 0.0
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			break
		}
		for id := range next {
			next[id] /= norm
		}

		delta := 0.0
		for _, id := range n.Nodes {
			delta += math.Abs(next[id] - x[id])
		}

		x = next
		if delta < tolerance {
			break
		}
	}

	for _, id := range n.Nodes {
		scores[id] = x[id]
	}

	return scores
}
