package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/antoniostano/finchat/internal/analytics"
	"github.com/antoniostano/finchat/internal/llm"
	"github.com/antoniostano/finchat/internal/routing"
	"github.com/antoniostano/finchat/internal/snapshot"
)

// Reply is what an agent hands back to the conversation pipeline.
type Reply struct {
	Text        string   `json:"reply"`
	Suggestions []string `json:"suggestions"`
	Data        any      `json:"data,omitempty"`
}

type SnapshotSource interface {
	Get(ctx context.Context, userID string) (snapshot.Snapshot, error)
}

type MemorySource interface {
	BuildContextHeader(ctx context.Context, userID string) (string, error)
	BuildRecentTranscript(ctx context.Context, userID string, limit int) (string, error)
}

// FallbackObserver counts replies that were built from templates because
// narration failed.
type FallbackObserver interface {
	ObserveAgentFallback(agent string)
}

const (
	agentAnalytics  = "analytics"
	agentLoan       = "loan"
	agentInvestment = "investment"
)

type Options struct {
	Policy          Policy
	Catalog         Catalog
	Engine          *analytics.Engine
	TranscriptLimit int
	Observer        FallbackObserver
	Logger          zerolog.Logger
}

// Dispatcher runs the agent matching a routed intent.
type Dispatcher struct {
	client    llm.Client
	snapshots SnapshotSource
	memory    MemorySource
	policy    Policy
	catalog   Catalog
	engine    *analytics.Engine
	limit     int
	observer  FallbackObserver
	logger    zerolog.Logger
}

func NewDispatcher(client llm.Client, snapshots SnapshotSource, memory MemorySource, opts Options) *Dispatcher {
	if opts.Engine == nil {
		opts.Engine = analytics.NewEngine(analytics.DefaultPolicy(), nil)
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.TranscriptLimit <= 0 {
		opts.TranscriptLimit = 12
	}
	return &Dispatcher{
		client:    client,
		snapshots: snapshots,
		memory:    memory,
		policy:    opts.Policy,
		catalog:   opts.Catalog,
		engine:    opts.Engine,
		limit:     opts.TranscriptLimit,
		observer:  opts.Observer,
		logger:    opts.Logger,
	}
}

// Dispatch runs the agent for intent. Only general chat and an unknown intent
// return an error; the specialised agents turn every failure into a reply.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, intent routing.Intent, narrative string) (Reply, error) {
	switch in := intent.(type) {
	case routing.AnalyzeSpending:
		return d.AnalyzeSpending(ctx, userID, in, narrative), nil
	case routing.RecommendLoan:
		return d.RecommendLoan(ctx, userID, in, narrative), nil
	case routing.RecommendInvestment:
		return d.RecommendInvestment(ctx, userID, in, narrative), nil
	case routing.GeneralChat:
		return d.GeneralChat(ctx, userID, in.Message, narrative)
	default:
		return Reply{}, fmt.Errorf("agents: unsupported intent %T", intent)
	}
}

func (d *Dispatcher) fallback(agent string) {
	if d.observer != nil {
		d.observer.ObserveAgentFallback(agent)
	}
}

func apology(text string, err error) Reply {
	return Reply{
		Text:        text,
		Suggestions: []string{},
		Data:        map[string]string{"error": err.Error()},
	}
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
