package routing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/finchat/internal/llm"
)

const (
	defaultAnalysisType = "GENERIC"
	defaultTimeRange    = "THIS_MONTH"
)

// RouteObserver is told which capability won and whether it came from the
// model or the fallback.
type RouteObserver interface {
	ObserveRoute(capability, source string)
}

// Router picks a capability for a message via model function calling.
type Router struct {
	client   llm.Client
	registry Registry
	observer RouteObserver
	logger   zerolog.Logger
}

func NewRouter(client llm.Client, registry Registry, observer RouteObserver, logger zerolog.Logger) *Router {
	return &Router{
		client:   client,
		registry: registry,
		observer: observer,
		logger:   logger,
	}
}

// Route never fails: every error, empty reply or unknown selection resolves
// to GeneralChat carrying the original message.
func (r *Router) Route(ctx context.Context, userID, message, narrative string) Intent {
	start := time.Now()
	req := llm.Request{
		Parts: []llm.Part{{Text: buildRoutingPrompt(message, narrative)}},
		Tools: r.registry.Declarations(),
	}

	resp, err := r.client.Generate(ctx, req)
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("routing call failed, using general chat")
		return r.fallback(message)
	}

	call, ok := resp.FirstFunctionCall()
	if !ok {
		r.logger.Debug().Str("user_id", userID).Msg("no function call in routing reply, using general chat")
		return r.fallback(message)
	}
	if !r.registry.Has(call.Name) {
		r.logger.Warn().Str("user_id", userID).Str("function", call.Name).Msg("routing chose undeclared function")
		return r.fallback(message)
	}

	intent := decodeIntent(call, message)
	r.logger.Info().
		Str("user_id", userID).
		Str("capability", string(intent.Capability())).
		Dur("took", time.Since(start)).
		Msg("intent routed")
	r.observe(intent, "llm")
	return intent
}

func (r *Router) fallback(message string) Intent {
	intent := GeneralChat{Message: message}
	r.observe(intent, "fallback")
	return intent
}

func (r *Router) observe(intent Intent, source string) {
	if r.observer != nil {
		r.observer.ObserveRoute(string(intent.Capability()), source)
	}
}

// decodeIntent maps a function call onto its variant, applying defaults.
func decodeIntent(call llm.FunctionCall, message string) Intent {
	capability, _ := ParseCapability(call.Name)
	args := call.Args
	switch capability {
	case CapabilityAnalyzeSpending:
		return AnalyzeSpending{
			AnalysisType: upperOr(argString(args, "analysisType"), defaultAnalysisType),
			TimeRange:    upperOr(argString(args, "timeRange"), defaultTimeRange),
			Category:     argString(args, "category"),
		}
	case CapabilityRecommendLoan:
		return RecommendLoan{
			LoanAmount: argNumber(args, "loanAmount"),
			Purpose:    argString(args, "purpose"),
		}
	case CapabilityRecommendInvestment:
		return RecommendInvestment{
			InvestmentType: strings.ToUpper(argString(args, "investmentType")),
			RiskTolerance:  strings.ToUpper(argString(args, "riskTolerance")),
		}
	default:
		msg := argString(args, "message")
		if msg == "" {
			msg = message
		}
		return GeneralChat{Message: msg}
	}
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func argNumber(args map[string]any, key string) *float64 {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if f <= 0 {
		return nil
	}
	return &f
}

func upperOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return strings.ToUpper(s)
}

func buildRoutingPrompt(message, narrative string) string {
	var b strings.Builder
	b.WriteString("You are the intent router of a personal expense-tracking assistant. ")
	b.WriteString("Pick the single function that best serves the user's message.\n\n")
	if strings.TrimSpace(narrative) != "" {
		b.WriteString("User financial context:\n")
		b.WriteString(narrative)
		b.WriteString("\n\n")
	}
	b.WriteString("Functions:\n")
	b.WriteString("- general_chat: general questions, tips, small talk\n")
	b.WriteString("- analyze_spending: analysis, comparisons, statistics about spending\n")
	b.WriteString("- recommend_loan: borrowing advice\n")
	b.WriteString("- recommend_investment: investing and saving advice\n")
	b.WriteString("If unsure, use general_chat.\n\n")
	b.WriteString("User message: ")
	b.WriteString(message)
	return b.String()
}
