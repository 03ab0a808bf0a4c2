package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// JSONOnlyInstruction closes every prompt that expects a JSON object back.
const JSONOnlyInstruction = "Respond with a single JSON object only. No markdown, no explanations."

// GenerateText runs a text-only prompt and returns the first non-blank text part.
func GenerateText(ctx context.Context, c Client, prompt string) (string, error) {
	resp, err := c.Generate(ctx, TextRequest(prompt))
	if err != nil {
		return "", err
	}
	return FirstText(resp)
}

// FirstText returns the first non-blank text part across candidates.
func FirstText(resp Response) (string, error) {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				return t, nil
			}
		}
	}
	return "", ErrNoText
}

// GenerateJSON runs prompt and decodes the cleaned reply into out.
// Empty or undecodable output is a KindParse error.
func GenerateJSON(ctx context.Context, c Client, op, prompt string, out any) error {
	text, err := GenerateText(ctx, c, prompt)
	if err != nil {
		if errors.Is(err, ErrNoText) {
			return ParseError(op, err)
		}
		return err
	}
	clean := CleanJSON(text)
	if clean == "" {
		return ParseError(op, ErrNoText)
	}
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return ParseError(op, err)
	}
	return nil
}

// CleanJSON strips Markdown code fences and a leading language tag from a
// model reply so it can be decoded as JSON.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx != -1 {
			// Drop the language tag line (```json).
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimSpace(s), "json")
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}
	s = strings.TrimSpace(s)

	// Bare "json" tag without fences.
	if len(s) > 4 && strings.EqualFold(s[:4], "json") {
		if rest := strings.TrimSpace(s[4:]); strings.HasPrefix(rest, "{") || strings.HasPrefix(rest, "[") {
			s = rest
		}
	}

	// Keep only the outermost object when prose surrounds it.
	if !strings.HasPrefix(s, "[") {
		if start := strings.Index(s, "{"); start != -1 {
			if end := strings.LastIndex(s, "}"); end > start {
				s = s[start : end+1]
			}
		}
	}
	return strings.TrimSpace(s)
}
