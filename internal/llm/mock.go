package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient provides deterministic local replies when no provider key is configured.
// With tools it selects a capability by keyword; JSON prompts get an empty object.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

var mockKeywords = []struct {
	capability string
	words      []string
}{
	{"recommend_loan", []string{"loan", "borrow", "vay"}},
	{"recommend_investment", []string{"invest", "đầu tư", "stock", "bond"}},
	{"analyze_spending", []string{"spend", "spent", "expense", "chi tiêu", "budget", "saving"}},
}

func (m *MockClient) Generate(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, &Error{Kind: KindTransport, Op: "mock.generate", Err: ctx.Err()}
	default:
	}

	prompt := joinText(req.Parts)
	if len(req.Tools) > 0 {
		if call, ok := mockRoute(prompt, req.Tools); ok {
			return Response{Candidates: []Candidate{{Parts: []Part{{FunctionCall: &call}}}}}, nil
		}
	}
	if strings.Contains(prompt, JSONOnlyInstruction) {
		return textResponse("{}"), nil
	}
	return textResponse(buildMockReply(prompt)), nil
}

func mockRoute(prompt string, tools []FunctionDeclaration) (FunctionCall, bool) {
	lower := strings.ToLower(lastLine(prompt))
	declared := make(map[string]bool, len(tools))
	for _, t := range tools {
		declared[t.Name] = true
	}
	for _, kw := range mockKeywords {
		if !declared[kw.capability] {
			continue
		}
		for _, w := range kw.words {
			if strings.Contains(lower, w) {
				return FunctionCall{Name: kw.capability, Args: map[string]any{}}, true
			}
		}
	}
	return FunctionCall{}, false
}

func buildMockReply(prompt string) string {
	last := lastLine(prompt)
	if last == "" {
		return "I am here to help with your finances."
	}
	return fmt.Sprintf("I heard you: %s", last)
}

func joinText(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func textResponse(text string) Response {
	return Response{Candidates: []Candidate{{Parts: []Part{{Text: text}}}}}
}
