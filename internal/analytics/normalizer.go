package analytics

import "sort"

// listNominationWeight is the fallback weight for plain id-list answers,
// which carry no explicit confidence signal.
const listNominationWeight = 0.5

// EdgeCandidate is one directed nomination extracted from an answer, before
// aggregation into the undirected network.
type EdgeCandidate struct {
	Source string
	Target string
	Weight float64
}

// NormalizeResponse extracts nomination edge candidates from one
// respondent's answers. Answers are visited in question-id order so the
// candidate list is reproducible for a fixed input. Self-nominations are
// dropped. Returns the candidates and the number of malformed items skipped.
func NormalizeResponse(respondentID string, answers map[string]AnswerValue) ([]EdgeCandidate, int) {
	if respondentID == "" {
		return nil, 0
	}

	questionIDs := make([]string, 0, len(answers))
	for id := range answers {
		questionIDs = append(questionIDs, id)
	}
	sort.Strings(questionIDs)

	var candidates []EdgeCandidate
	malformed := 0

	for _, qid := range questionIDs {
		answer := answers[qid]
		malformed += answer.MalformedItems

		switch answer.Kind {
		case AnswerSelections:
			for _, sel := range answer.Selections {
				if sel.UserID == respondentID {
					continue
				}
				candidates = append(candidates, EdgeCandidate{
					Source: respondentID,
					Target: sel.UserID,
					Weight: sel.Weight,
				})
			}
		case AnswerIDList:
			for _, id := range answer.IDs {
				if id == respondentID {
					continue
				}
				candidates = append(candidates, EdgeCandidate{
					Source: respondentID,
					Target: id,
					Weight: listNominationWeight,
				})
			}
		case AnswerNumber, AnswerText, AnswerInvalid:
			// Ratings and free text carry no nominations.
		}
	}

	return candidates, malformed
}
