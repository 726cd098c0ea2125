package analytics

import "sort"

const (
	StrengthStrong = "strong"
	StrengthMedium = "medium"
	StrengthWeak   = "weak"
)

// DefaultMinConnectionStrength filters out edges whose normalized weight is
// below this value unless the caller overrides it.
const DefaultMinConnectionStrength = 0.1

// Edge is one undirected connection with its normalized weight in [0,1].
// Source sorts before Target.
type Edge struct {
	Source   string
	Target   string
	Weight   float64
	Strength string
}

// Network is the aggregated nomination graph for one survey's response set.
// Nodes includes every respondent that submitted a response, even when no
// edge touches them; isolated-member detection depends on that.
type Network struct {
	Nodes []string
	Edges []Edge
}

type pairKey struct {
	a, b string
}

// Aggregator accumulates edge candidates into unordered-pair raw weights.
// Not safe for concurrent use; one aggregator serves one analysis run.
type Aggregator struct {
	raw       map[pairKey]float64
	nodes     map[string]struct{}
	malformed int
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		raw:   make(map[pairKey]float64),
		nodes: make(map[string]struct{}),
	}
}

// AddNode registers a respondent id as a graph node regardless of whether
// any nomination touches it.
func (a *Aggregator) AddNode(id string) {
	if id != "" {
		a.nodes[id] = struct{}{}
	}
}

// AddResponse normalizes one response and folds its candidates in.
func (a *Aggregator) AddResponse(respondentID string, answers map[string]AnswerValue) {
	a.AddNode(respondentID)

	candidates, malformed := NormalizeResponse(respondentID, answers)
	a.malformed += malformed

	for _, c := range candidates {
		a.Add(c)
	}
}

// Add accumulates one candidate into its unordered pair. Self-edges are
// never recorded.
func (a *Aggregator) Add(c EdgeCandidate) {
	if c.Source == "" || c.Target == "" || c.Source == c.Target {
		return
	}

	key := pairKey{a: c.Source, b: c.Target}
	if key.b < key.a {
		key.a, key.b = key.b, key.a
	}

	a.raw[key] += c.Weight
}

// MalformedCount reports how many answer items were skipped as malformed.
func (a *Aggregator) MalformedCount() int {
	return a.malformed
}

// Build normalizes accumulated weights by the batch maximum, drops edges
// below minStrength, and emits a Network with deterministic node and edge
// order. With no accumulated edges the result is nodes-only.
func (a *Aggregator) Build(minStrength float64) Network {
	maxWeight := 0.0
	for _, w := range a.raw {
		if w > maxWeight {
			maxWeight = w
		}
	}

	nodeSet := make(map[string]struct{}, len(a.nodes))
	for id := range a.nodes {
		nodeSet[id] = struct{}{}
	}

	var edges []Edge
	if maxWeight > 0 {
		keys := make([]pairKey, 0, len(a.raw))
		for key := range a.raw {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].a != keys[j].a {
				return keys[i].a < keys[j].a
			}
			return keys[i].b < keys[j].b
		})

		for _, key := range keys {
			weight := a.raw[key] / maxWeight
			if weight < minStrength {
				continue
			}

			edges = append(edges, Edge{
				Source:   key.a,
				Target:   key.b,
				Weight:   weight,
				Strength: classifyStrength(weight),
			})
			nodeSet[key.a] = struct{}{}
			nodeSet[key.b] = struct{}{}
		}
	}

	nodes := make([]string, 0, len(nodeSet))
	for id := range nodeSet {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	return Network{Nodes: nodes, Edges: edges}
}

func classifyStrength(weight float64) string {
	switch {
	case weight >= 0.7:
		return StrengthStrong
	case weight >= 0.4:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}
