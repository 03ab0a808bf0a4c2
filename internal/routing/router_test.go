package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/finchat/internal/llm"
)

type routeCount struct {
	capability string
	source     string
}

type recordingObserver struct{ seen []routeCount }

func (r *recordingObserver) ObserveRoute(capability, source string) {
	r.seen = append(r.seen, routeCount{capability, source})
}

func respondWith(resp llm.Response, err error) llm.Client {
	return llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return resp, err
	})
}

func callResponse(name string, args map[string]any) llm.Response {
	return llm.Response{Candidates: []llm.Candidate{{Parts: []llm.Part{{FunctionCall: &llm.FunctionCall{Name: name, Args: args}}}}}}
}

func TestRouteFallsBackOnError(t *testing.T) {
	obs := &recordingObserver{}
	r := NewRouter(respondWith(llm.Response{}, errors.New("timeout")), DefaultRegistry(), obs, zerolog.Nop())

	intent := r.Route(context.Background(), "u", "hello", "")
	assert.Equal(t, GeneralChat{Message: "hello"}, intent)
	assert.Equal(t, []routeCount{{"general_chat", "fallback"}}, obs.seen)
}

func TestRouteFallsBackOnZeroCandidates(t *testing.T) {
	r := NewRouter(respondWith(llm.Response{}, nil), DefaultRegistry(), nil, zerolog.Nop())
	assert.Equal(t, GeneralChat{Message: "hi"}, r.Route(context.Background(), "u", "hi", "ctx"))
}

func TestRouteFallsBackOnTextOnlyOrEmptyParts(t *testing.T) {
	resp := llm.Response{Candidates: []llm.Candidate{{Parts: []llm.Part{{}, {Text: "I think general chat"}}}}}
	r := NewRouter(respondWith(resp, nil), DefaultRegistry(), nil, zerolog.Nop())
	assert.Equal(t, GeneralChat{Message: "hi"}, r.Route(context.Background(), "u", "hi", ""))
}

func TestRouteFallsBackOnUnknownFunction(t *testing.T) {
	r := NewRouter(respondWith(callResponse("transfer_money", nil), nil), DefaultRegistry(), nil, zerolog.Nop())
	assert.Equal(t, GeneralChat{Message: "send 5$"}, r.Route(context.Background(), "u", "send 5$", ""))
}

func TestRouteAnalyzeSpendingDefaults(t *testing.T) {
	obs := &recordingObserver{}
	r := NewRouter(respondWith(callResponse("analyze_spending", map[string]any{"category": "Food"}), nil), DefaultRegistry(), obs, zerolog.Nop())

	intent := r.Route(context.Background(), "u", "how much on food?", "")
	assert.Equal(t, AnalyzeSpending{AnalysisType: "GENERIC", TimeRange: "THIS_MONTH", Category: "Food"}, intent)
	assert.Equal(t, []routeCount{{"analyze_spending", "llm"}}, obs.seen)
}

func TestRouteTakesFirstCallAcrossCandidates(t *testing.T) {
	resp := llm.Response{Candidates: []llm.Candidate{
		{Parts: []llm.Part{{Text: "thinking"}}},
		{Parts: []llm.Part{{FunctionCall: &llm.FunctionCall{Name: "recommend_loan", Args: map[string]any{"loanAmount": 24000000.0, "purpose": "car"}}}}},
		{Parts: []llm.Part{{FunctionCall: &llm.FunctionCall{Name: "recommend_investment"}}}},
	}}
	r := NewRouter(respondWith(resp, nil), DefaultRegistry(), nil, zerolog.Nop())

	intent := r.Route(context.Background(), "u", "loan please", "")
	loan, ok := intent.(RecommendLoan)
	require.True(t, ok, "got %T", intent)
	require.NotNil(t, loan.LoanAmount)
	assert.Equal(t, 24000000.0, *loan.LoanAmount)
	assert.Equal(t, "car", loan.Purpose)
}

func TestRouteSendsDeclarationsAndPrompt(t *testing.T) {
	var got llm.Request
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
		got = req
		return callResponse("recommend_investment", map[string]any{"riskTolerance": "high"}), nil
	})
	r := NewRouter(client, DefaultRegistry(), nil, zerolog.Nop())

	intent := r.Route(context.Background(), "u", "where to invest?", "Total balance: 5")
	assert.Equal(t, RecommendInvestment{RiskTolerance: "HIGH"}, intent)
	require.Len(t, got.Tools, 4)
	require.Len(t, got.Parts, 1)
	assert.Contains(t, got.Parts[0].Text, "Total balance: 5")
	assert.Contains(t, got.Parts[0].Text, "User message: where to invest?")
}

func TestArgNumberAcceptsStrings(t *testing.T) {
	v := argNumber(map[string]any{"n": "24,000,000"}, "n")
	require.NotNil(t, v)
	assert.Equal(t, 24000000.0, *v)
	assert.Nil(t, argNumber(map[string]any{"n": "lots"}, "n"))
	assert.Nil(t, argNumber(map[string]any{"n": 0.0}, "n"))
	assert.Nil(t, argNumber(nil, "n"))
}

func TestRegistryIsImmutable(t *testing.T) {
	reg := DefaultRegistry()
	decls := reg.Declarations()
	decls[0].Name = "mutated"
	assert.True(t, reg.Has("general_chat"))
	assert.False(t, reg.Has("mutated"))
	assert.Equal(t, 4, reg.Len())
}

func TestParseCapability(t *testing.T) {
	c, ok := ParseCapability("recommend_loan")
	assert.True(t, ok)
	assert.Equal(t, CapabilityRecommendLoan, c)
	_, ok = ParseCapability("nope")
	assert.False(t, ok)
}
