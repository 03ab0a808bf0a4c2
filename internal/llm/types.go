package llm

import "context"

// Client is the single call shape the assistant uses against a language model.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

func (f ClientFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Request is an ordered list of content parts plus optional function declarations.
type Request struct {
	Parts []Part
	Tools []FunctionDeclaration
}

// Response carries zero or more candidates. Empty candidate lists are valid.
type Response struct {
	Candidates []Candidate
}

type Candidate struct {
	Parts []Part
}

// Part is either text or a function call. A part with neither is tolerated and ignored.
type Part struct {
	Text         string
	FunctionCall *FunctionCall
}

type FunctionCall struct {
	Name string
	Args map[string]any
}

// FunctionDeclaration advertises one callable capability to the model.
type FunctionDeclaration struct {
	Name        string
	Description string
	Parameters  Schema
}

type SchemaType string

const (
	TypeObject SchemaType = "object"
	TypeString SchemaType = "string"
	TypeNumber SchemaType = "number"
)

// Schema is the advisory parameter description attached to a declaration.
type Schema struct {
	Type        SchemaType
	Description string
	Enum        []string
	Properties  map[string]Schema
}

// TextRequest builds a single-part text request.
func TextRequest(prompt string) Request {
	return Request{Parts: []Part{{Text: prompt}}}
}

// FirstFunctionCall returns the first function call across all candidates.
func (r Response) FirstFunctionCall() (FunctionCall, bool) {
	for _, c := range r.Candidates {
		for _, p := range c.Parts {
			if p.FunctionCall != nil && p.FunctionCall.Name != "" {
				return *p.FunctionCall, true
			}
		}
	}
	return FunctionCall{}, false
}
