package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/finchat/internal/agents"
	"github.com/antoniostano/finchat/internal/analytics"
	"github.com/antoniostano/finchat/internal/memory"
	"github.com/antoniostano/finchat/internal/observability"
	"github.com/antoniostano/finchat/internal/policy"
	"github.com/antoniostano/finchat/internal/routing"
	"github.com/antoniostano/finchat/internal/snapshot"
)

// ApologyText is returned when even the context-free fallback fails.
const ApologyText = "Sorry, I can't answer right now. Please try again in a moment."

const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
	outcomeApology  = "apology"
)

// Request is one inbound chat message.
type Request struct {
	Message string
	Locale  string
	// Context is optional client state (selected month, current screen).
	Context string
}

type Snapshots interface {
	Get(ctx context.Context, userID string) (snapshot.Snapshot, error)
	Save(ctx context.Context, userID string, snap snapshot.Snapshot) error
	RenderNarrative(ctx context.Context, userID string) (string, error)
	MergeAnalyticsCache(ctx context.Context, userID string, partial map[string]json.RawMessage) error
}

type Router interface {
	Route(ctx context.Context, userID, message, narrative string) routing.Intent
}

type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, intent routing.Intent, narrative string) (agents.Reply, error)
	GeneralChat(ctx context.Context, userID, message, narrative string) (agents.Reply, error)
}

type Compactor interface {
	UpdateIfNeeded(ctx context.Context, userID string) (bool, error)
}

type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveChatRequest(outcome string)
}

type Options struct {
	HistoryLimit int
	Observer     Observer
	Logger       zerolog.Logger
}

// Orchestrator runs the per-message pipeline and the history and context
// operations behind the HTTP API.
type Orchestrator struct {
	snapshots    Snapshots
	router       Router
	dispatcher   Dispatcher
	turns        memory.Store
	compactor    Compactor
	historyLimit int
	observer     Observer
	logger       zerolog.Logger
	now          func() time.Time
}

func NewOrchestrator(snapshots Snapshots, router Router, dispatcher Dispatcher, turns memory.Store, compactor Compactor, opts Options) *Orchestrator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &Orchestrator{
		snapshots:    snapshots,
		router:       router,
		dispatcher:   dispatcher,
		turns:        turns,
		compactor:    compactor,
		historyLimit: opts.HistoryLimit,
		observer:     opts.Observer,
		logger:       opts.Logger,
		now:          time.Now,
	}
}

// Chat answers one message. It never fails: pipeline errors degrade to a
// context-free general chat reply and then to a fixed apology.
func (o *Orchestrator) Chat(ctx context.Context, userID string, req Request) agents.Reply {
	start := time.Now()
	defer func() { o.observeStage(observability.StageTurnTotal, time.Since(start)) }()

	reply, intent, err := o.run(ctx, userID, req)
	if err != nil {
		o.logger.Error().Err(err).Str("user_id", userID).Msg("chat pipeline failed, falling back to general chat")
		fallback, ferr := o.dispatcher.GeneralChat(ctx, userID, req.Message, "")
		if ferr != nil {
			o.logger.Error().Err(ferr).Str("user_id", userID).Msg("fallback chat failed")
			o.observeOutcome(outcomeApology)
			return agents.Reply{Text: ApologyText, Suggestions: []string{}}
		}
		o.observeOutcome(outcomeFallback)
		return fallback
	}

	o.compact(ctx, userID)
	if _, ok := intent.(routing.AnalyzeSpending); ok {
		o.cacheAnalytics(ctx, userID, reply.Data)
	}
	o.observeOutcome(outcomeOK)
	return reply
}

func (o *Orchestrator) run(ctx context.Context, userID string, req Request) (agents.Reply, routing.Intent, error) {
	stageStart := time.Now()
	narrative, err := o.snapshots.RenderNarrative(ctx, userID)
	if err != nil {
		return agents.Reply{}, nil, fmt.Errorf("render narrative: %w", err)
	}
	if c := strings.TrimSpace(req.Context); c != "" {
		narrative += "\nClient context: " + c
	}
	o.observeStage(observability.StageContextReady, time.Since(stageStart))

	stageStart = time.Now()
	intent := o.router.Route(ctx, userID, req.Message, narrative)
	o.observeStage(observability.StageRouteDecided, time.Since(stageStart))

	if err := o.persist(ctx, userID, memory.RoleUser, req.Message); err != nil {
		return agents.Reply{}, nil, fmt.Errorf("persist user turn: %w", err)
	}

	stageStart = time.Now()
	reply, err := o.dispatcher.Dispatch(ctx, userID, intent, narrative)
	if err != nil {
		return agents.Reply{}, nil, fmt.Errorf("dispatch %s: %w", intent.Capability(), err)
	}
	o.observeStage(observability.StageAgentReply, time.Since(stageStart))

	stageStart = time.Now()
	if err := o.persist(ctx, userID, memory.RoleAssistant, reply.Text); err != nil {
		return agents.Reply{}, nil, fmt.Errorf("persist assistant turn: %w", err)
	}
	o.observeStage(observability.StageMemoryPersist, time.Since(stageStart))

	if reply.Suggestions == nil {
		reply.Suggestions = []string{}
	}
	return reply, intent, nil
}

func (o *Orchestrator) persist(ctx context.Context, userID string, role memory.Role, content string) error {
	redacted, changed := policy.RedactPII(content)
	_, err := o.turns.SaveTurn(ctx, memory.Turn{
		UserID:      userID,
		Role:        role,
		Content:     redacted,
		PIIRedacted: changed,
		CreatedAt:   o.now().UTC(),
	})
	return err
}

// compact folds memory when enough turns are pending. Failures are logged;
// the sweeper retries them later.
func (o *Orchestrator) compact(ctx context.Context, userID string) {
	if o.compactor == nil {
		return
	}
	if _, err := o.compactor.UpdateIfNeeded(ctx, userID); err != nil {
		o.logger.Warn().Err(err).Str("user_id", userID).Msg("memory compaction failed")
	}
}

// cacheAnalytics stores a complete analysis result under its type.
func (o *Orchestrator) cacheAnalytics(ctx context.Context, userID string, data any) {
	res, ok := data.(analytics.Result)
	if !ok || res.Failure() != "" {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		o.logger.Warn().Err(err).Str("user_id", userID).Msg("encode analytics result")
		return
	}
	partial := map[string]json.RawMessage{string(res.ResultType()): raw}
	if err := o.snapshots.MergeAnalyticsCache(ctx, userID, partial); err != nil {
		o.logger.Warn().Err(err).Str("user_id", userID).Msg("analytics cache merge failed")
	}
}

func (o *Orchestrator) GetContext(ctx context.Context, userID string) (snapshot.Snapshot, error) {
	return o.snapshots.Get(ctx, userID)
}

func (o *Orchestrator) SyncContext(ctx context.Context, userID string, snap snapshot.Snapshot) error {
	return o.snapshots.Save(ctx, userID, snap)
}

// History returns the latest visible turns, oldest first.
func (o *Orchestrator) History(ctx context.Context, userID string) ([]memory.Turn, error) {
	return o.turns.RecentVisible(ctx, userID, o.historyLimit)
}

// ClearHistory hides every turn from history. Memory folding still sees them.
func (o *Orchestrator) ClearHistory(ctx context.Context, userID string) error {
	return o.turns.SoftDeleteAll(ctx, userID)
}

func (o *Orchestrator) observeStage(stage string, d time.Duration) {
	if o.observer != nil {
		o.observer.ObserveStage(stage, d)
	}
}

func (o *Orchestrator) observeOutcome(outcome string) {
	if o.observer != nil {
		o.observer.ObserveChatRequest(outcome)
	}
}
