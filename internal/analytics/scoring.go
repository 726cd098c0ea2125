package analytics

import (
	"math"
	"sort"
)

// LeaderScore pairs a member name with a combined influence score. Results
// keep ranking order; ties preserve the original node iteration order.
type LeaderScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// EngagementInputs are the survey-level signals feeding the engagement
// score. They come from invitation and response records, not from the graph.
type EngagementInputs struct {
	ResponseRate     float64
	CompletionRate   float64
	AvgResponseHours float64
	QualityScores    []float64
}

// EngagementScore combines participation rate, completion quality, response
// speed, and answer completeness into a 0-100 score.
func EngagementScore(in EngagementInputs) float64 {
	responseScore := math.Min(in.ResponseRate*0.4, 40)
	completionScore := math.Min(in.CompletionRate*0.3, 30)

	var speedScore float64
	switch {
	case in.AvgResponseHours <= 24:
		speedScore = 20
	case in.AvgResponseHours <= 72:
		speedScore = 15
	case in.AvgResponseHours <= 168:
		speedScore = 10
	default:
		speedScore = 5
	}

	qualityScore := 0.0
	if len(in.QualityScores) > 0 {
		sum := 0.0
		for _, q := range in.QualityScores {
			sum += q
		}
		qualityScore = sum / float64(len(in.QualityScores)) * 10
	}

	return round2(math.Min(responseScore+completionScore+speedScore+qualityScore, 100))
}

// TeamCohesionScore scores 0-100 from density, clustering, and
// fragmentation. A single connected component earns the full 20-point
// fragmentation term; it decays as the network splits.
func TeamCohesionScore(meta NetworkMetadata) float64 {
	if meta.ConnectedComponents == 0 {
		return 0
	}

	score := meta.Density*50 + meta.AvgClustering*30 + 20/float64(meta.ConnectedComponents)
	return round2(math.Min(score, 100))
}

// CommunicationEffectiveness scores 0-100 from average connection strength
// and the fraction of strong edges. No edges means no communication signal.
func CommunicationEffectiveness(edges []Edge) float64 {
	if len(edges) == 0 {
		return 0
	}

	sum := 0.0
	strong := 0
	for _, e := range edges {
		sum += e.Weight
		if e.Strength == StrengthStrong {
			strong++
		}
	}

	avg := sum / float64(len(edges))
	effectiveness := avg*60 + float64(strong)/float64(len(edges))*40
	return round2(math.Min(effectiveness, 100))
}

// CollaborationIndex is the percentage of edges connecting two different
// departments. Edges touching a member with no known department are not
// counted as cross-department.
func CollaborationIndex(edges []Edge, departments map[string]string) float64 {
	if len(edges) == 0 {
		return 0
	}

	crossDept := 0
	for _, e := range edges {
		src := departments[e.Source]
		dst := departments[e.Target]
		if src != "" && dst != "" && src != dst {
			crossDept++
		}
	}

	return round2(float64(crossDept) / float64(len(edges)) * 100)
}

// LeadershipInfluence ranks members by 0.6*betweenness + 0.4*eigenvector
// and returns the top 5. nodeOrder fixes tie-breaking; names maps node ids
// to display names.
func LeadershipInfluence(nodeOrder []string, nodes map[string]NodeMetrics, names map[string]string) []LeaderScore {
	scores := make([]LeaderScore, 0, len(nodeOrder))
	for _, id := range nodeOrder {
		m := nodes[id]
		scores = append(scores, LeaderScore{
			Name:  names[id],
			Score: round3(m.Betweenness*0.6 + m.Eigenvector*0.4),
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	if len(scores) > 5 {
		scores = scores[:5]
	}
	return scores
}

// DepartmentConnectivity scores each department by the share of possible
// internal member pairs that are actually connected. Departments with fewer
// than 2 members score 0.
func DepartmentConnectivity(nodeIDs []string, edges []Edge, departments map[string]string) map[string]float64 {
	members := make(map[string][]string)
	for _, id := range nodeIDs {
		dept := departments[id]
		if dept == "" {
			dept = "Unassigned"
		}
		members[dept] = append(members[dept], id)
	}

	scores := make(map[string]float64, len(members))
	for dept, ids := range members {
		if len(ids) < 2 {
			scores[dept] = 0
			continue
		}

		inDept := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			inDept[id] = struct{}{}
		}

		internal := 0
		for _, e := range edges {
			_, srcIn := inDept[e.Source]
			_, dstIn := inDept[e.Target]
			if srcIn && dstIn {
				internal++
			}
		}

		possible := len(ids) * (len(ids) - 1) / 2
		scores[dept] = round2(float64(internal) / float64(possible) * 100)
	}

	return scores
}

// IsolatedMembers lists members whose degree is below 2, in node order.
func IsolatedMembers(nodeOrder []string, nodes map[string]NodeMetrics, names map[string]string) []string {
	var isolated []string
	for _, id := range nodeOrder {
		if nodes[id].Degree < 2 {
			isolated = append(isolated, names[id])
		}
	}
	return isolated
}

// KeyConnectors lists up to 5 members with betweenness above 0.05, highest
// first.
func KeyConnectors(nodeOrder []string, nodes map[string]NodeMetrics, names map[string]string) []string {
	ids := make([]string, len(nodeOrder))
	copy(ids, nodeOrder)

	sort.SliceStable(ids, func(i, j int) bool {
		return nodes[ids[i]].Betweenness > nodes[ids[j]].Betweenness
	})

	var connectors []string
	for _, id := range ids {
		if nodes[id].Betweenness <= 0.05 {
			continue
		}
		connectors = append(connectors, names[id])
		if len(connectors) == 5 {
			break
		}
	}
	return connectors
}

// NPSScore computes a Net Promoter Score from 0-10 recommendation answers:
// promoters (>=9) minus detractors (<=6) as a percentage of all scores.
func NPSScore(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	promoters := 0
	detractors := 0
	for _, v := range values {
		if v >= 9 {
			promoters++
		} else if v <= 6 {
			detractors++
		}
	}

	return round2(float64(promoters-detractors) / float64(len(values)) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
