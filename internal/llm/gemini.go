package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient talks to the Gemini API with function calling enabled.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, &Error{Kind: KindConfiguration, Op: "gemini.new", Err: ErrMissingAPIKey}
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Op: "gemini.new", Err: fmt.Errorf("create genai client: %w", err)}
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: toGenaiParts(req.Parts),
	}}

	var cfg *genai.GenerateContentConfig
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		cfg = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{{FunctionDeclarations: decls}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Response{}, classifyGeminiError(err)
	}
	return fromGenaiResponse(resp), nil
}

func toGenaiParts(parts []Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.FunctionCall != nil:
			out = append(out, &genai.Part{FunctionCall: &genai.FunctionCall{
				Name: p.FunctionCall.Name,
				Args: p.FunctionCall.Args,
			}})
		case p.Text != "":
			out = append(out, &genai.Part{Text: p.Text})
		}
	}
	return out
}

func toGenaiSchema(s Schema) *genai.Schema {
	out := &genai.Schema{
		Type:        toGenaiType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func toGenaiType(t SchemaType) genai.Type {
	switch t {
	case TypeString:
		return genai.TypeString
	case TypeNumber:
		return genai.TypeNumber
	default:
		return genai.TypeObject
	}
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) Response {
	if resp == nil {
		return Response{}
	}
	out := Response{Candidates: make([]Candidate, 0, len(resp.Candidates))}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		cand := Candidate{Parts: make([]Part, 0, len(c.Content.Parts))}
		for _, p := range c.Content.Parts {
			if p == nil {
				continue
			}
			part := Part{Text: p.Text}
			if p.FunctionCall != nil {
				part.FunctionCall = &FunctionCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args}
			}
			cand.Parts = append(cand.Parts, part)
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		kind := KindTransport
		if apiErr.Code == 401 || apiErr.Code == 403 {
			kind = KindConfiguration
		}
		return &Error{Kind: kind, Op: "gemini.generate", Status: apiErr.Code, Err: err}
	}
	return &Error{Kind: KindTransport, Op: "gemini.generate", Err: err}
}
