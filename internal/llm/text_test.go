package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"plain":         `{"a":1}`,
		"fenced":        "```json\n{\"a\":1}\n```",
		"fenced no tag": "```\n{\"a\":1}\n```",
		"bare tag":      "json {\"a\":1}",
		"prose wrapped": "Here you go: {\"a\":1} hope it helps",
		"padded fenced": "  \n```json\n  {\"a\":1}  \n```\n",
		"single line":   "```json {\"a\":1}```",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, `{"a":1}`, CleanJSON(in))
		})
	}
}

func TestGenerateJSONFencedMatchesPlain(t *testing.T) {
	type payload struct {
		Summary string   `json:"summary"`
		Items   []string `json:"items"`
	}
	body := `{"summary":"ok","items":["x","y"]}`

	decode := func(reply string) payload {
		c := ClientFunc(func(context.Context, Request) (Response, error) {
			return textResponse(reply), nil
		})
		var p payload
		require.NoError(t, GenerateJSON(context.Background(), c, "test", "prompt", &p))
		return p
	}

	assert.Equal(t, decode(body), decode("```json\n"+body+"\n```"))
}

func TestGenerateJSONParseFailure(t *testing.T) {
	c := ClientFunc(func(context.Context, Request) (Response, error) {
		return textResponse("not json at all"), nil
	})
	var out map[string]any
	err := GenerateJSON(context.Background(), c, "test", "prompt", &out)
	require.Error(t, err)
	assert.Equal(t, KindParse, KindOf(err))
}

func TestGenerateJSONEmptyCandidates(t *testing.T) {
	c := ClientFunc(func(context.Context, Request) (Response, error) {
		return Response{}, nil
	})
	var out map[string]any
	err := GenerateJSON(context.Background(), c, "test", "prompt", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoText))
	assert.Equal(t, KindParse, KindOf(err))
}

func TestFirstTextSkipsEmptyParts(t *testing.T) {
	resp := Response{Candidates: []Candidate{
		{Parts: []Part{{}, {Text: "  "}}},
		{Parts: []Part{{FunctionCall: &FunctionCall{Name: "x"}}, {Text: "hello"}}},
	}}
	got, err := FirstText(resp)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestFirstFunctionCallAcrossCandidates(t *testing.T) {
	resp := Response{Candidates: []Candidate{
		{Parts: []Part{{Text: "thinking"}}},
		{Parts: []Part{{FunctionCall: &FunctionCall{Name: "recommend_loan", Args: map[string]any{"purpose": "car"}}}}},
	}}
	call, ok := resp.FirstFunctionCall()
	require.True(t, ok)
	assert.Equal(t, "recommend_loan", call.Name)

	_, ok = Response{}.FirstFunctionCall()
	assert.False(t, ok)
}
