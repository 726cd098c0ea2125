package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswersShapes(t *testing.T) {
	answers := ParseAnswers(`{
		"q_rating": 8,
		"q_comment": "great team",
		"q_peers": ["u2", "u3"],
		"q_trust": {"selections": [{"user_id": "u2", "weight": 0.9}, {"user_id": "u4"}]},
		"q_skipped": null,
		"q_flag": true
	}`)

	require.Len(t, answers, 6)

	rating := answers["q_rating"]
	assert.Equal(t, AnswerNumber, rating.Kind)
	assert.Equal(t, 8.0, rating.Number)
	assert.False(t, rating.IsEmpty())

	comment := answers["q_comment"]
	assert.Equal(t, AnswerText, comment.Kind)
	assert.Equal(t, "great team", comment.Text)

	peers := answers["q_peers"]
	assert.Equal(t, AnswerIDList, peers.Kind)
	assert.Equal(t, []string{"u2", "u3"}, peers.IDs)

	trust := answers["q_trust"]
	assert.Equal(t, AnswerSelections, trust.Kind)
	require.Len(t, trust.Selections, 2)
	assert.Equal(t, Selection{UserID: "u2", Weight: 0.9}, trust.Selections[0])
	assert.Equal(t, Selection{UserID: "u4", Weight: 1.0}, trust.Selections[1])

	assert.True(t, answers["q_skipped"].IsEmpty())

	flag := answers["q_flag"]
	assert.Equal(t, AnswerInvalid, flag.Kind)
}

func TestParseAnswersNumericIdentifiers(t *testing.T) {
	answers := ParseAnswers(`{
		"q_peers": [42, "u7", 3.5],
		"q_trust": {"selections": [{"user_id": 19, "weight": 0.5}]}
	}`)

	peers := answers["q_peers"]
	assert.Equal(t, []string{"42", "u7"}, peers.IDs)
	assert.Equal(t, 1, peers.MalformedItems)

	trust := answers["q_trust"]
	require.Len(t, trust.Selections, 1)
	assert.Equal(t, "19", trust.Selections[0].UserID)
}

func TestParseAnswersMalformedItems(t *testing.T) {
	answers := ParseAnswers(`{
		"q_peers": ["", "u2", {"nested": true}],
		"q_trust": {"selections": [{"weight": 0.5}, "not_an_object", {"user_id": "u3"}]}
	}`)

	assert.Equal(t, 2, answers["q_peers"].MalformedItems)
	assert.Equal(t, []string{"u2"}, answers["q_peers"].IDs)

	trust := answers["q_trust"]
	assert.Equal(t, 2, trust.MalformedItems)
	require.Len(t, trust.Selections, 1)
	assert.Equal(t, "u3", trust.Selections[0].UserID)
}

func TestParseAnswersMalformedDocument(t *testing.T) {
	assert.Empty(t, ParseAnswers(`not json`))
	assert.Empty(t, ParseAnswers(`[1, 2, 3]`))
	assert.Empty(t, ParseAnswers(``))
}

func TestParseAnswersEmptyValues(t *testing.T) {
	answers := ParseAnswers(`{"q_text": "", "q_list": [], "q_null": null}`)

	assert.True(t, answers["q_text"].IsEmpty())
	assert.True(t, answers["q_list"].IsEmpty())
	assert.True(t, answers["q_null"].IsEmpty())
}

func TestParseAnswersObjectWithoutSelections(t *testing.T) {
	answers := ParseAnswers(`{"q_other": {"foo": "bar"}}`)

	assert.Equal(t, AnswerInvalid, answers["q_other"].Kind)
}
