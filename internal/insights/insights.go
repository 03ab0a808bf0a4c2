package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/finchat/internal/llm"
)

const maxItems = 3

// Request carries the aggregates the client computed for a period.
type Request struct {
	TotalIncome           float64
	TotalExpense          float64
	TotalDebt             float64
	RecentSpendingPattern string
	TimeRange             string
}

type Insights struct {
	Alerts []string `json:"alerts"`
	Tips   []string `json:"tips"`
}

func (i Insights) empty() bool { return len(i.Alerts) == 0 && len(i.Tips) == 0 }

type FallbackObserver interface {
	ObserveAgentFallback(agent string)
}

type Service struct {
	client   llm.Client
	observer FallbackObserver
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(client llm.Client, observer FallbackObserver, logger zerolog.Logger) *Service {
	return &Service{client: client, observer: observer, logger: logger, now: time.Now}
}

// Generate asks the model for alerts and tips. An empty answer or any failure
// yields the deterministic fallback, so the call never fails.
func (s *Service) Generate(ctx context.Context, userID string, req Request) Insights {
	raw, err := llm.GenerateText(ctx, s.client, buildPrompt(req, s.now().UTC()))
	if err == nil {
		var out Insights
		if out, err = Decode(raw); err == nil && !out.empty() {
			return out
		}
	}
	s.logger.Info().Err(err).Str("user_id", userID).Msg("insights fallback")
	if s.observer != nil {
		s.observer.ObserveAgentFallback("insights")
	}
	return Fallback(req)
}

// Decode parses a model reply, keeping at most three non-blank strings per list.
func Decode(raw string) (Insights, error) {
	clean := llm.CleanJSON(raw)
	if clean == "" {
		return Insights{}, llm.ParseError("insights", llm.ErrNoText)
	}
	var doc struct {
		Alerts []json.RawMessage `json:"alerts"`
		Tips   []json.RawMessage `json:"tips"`
	}
	if err := json.Unmarshal([]byte(clean), &doc); err != nil {
		return Insights{}, llm.ParseError("insights", err)
	}
	return Insights{Alerts: textItems(doc.Alerts), Tips: textItems(doc.Tips)}, nil
}

func textItems(items []json.RawMessage) []string {
	out := []string{}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxItems {
			break
		}
	}
	return out
}

// Fallback derives alerts from the aggregates alone.
func Fallback(req Request) Insights {
	spending := "Your spending is within a safe threshold relative to your income."
	if req.TotalExpense > req.TotalIncome {
		spending = "Your expenses exceed your income in this period."
	}
	debt := "No debt is currently reported."
	if req.TotalDebt > 0 {
		debt = "You have debts to monitor carefully."
	}
	return Insights{
		Alerts: []string{spending, debt},
		Tips:   []string{"Set budgets for large categories such as food and entertainment to keep spending under control."},
	}
}

func buildPrompt(req Request, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a personal finance assistant. Generate short alerts and tips from the spending figures below. ")
	b.WriteString(`Schema: {"alerts": [string], "tips": [string]}. Keep each item short and actionable. `)
	fmt.Fprintf(&b, "Current date (UTC): %s. ", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total income: %.2f. Total expense: %.2f. Total debt: %.2f. ", req.TotalIncome, req.TotalExpense, req.TotalDebt)
	if tr := strings.TrimSpace(req.TimeRange); tr != "" {
		fmt.Fprintf(&b, "Time range: %s. ", tr)
	}
	if p := strings.TrimSpace(req.RecentSpendingPattern); p != "" {
		fmt.Fprintf(&b, "Recent pattern: %s. ", p)
	}
	b.WriteString("Return at most 3 alerts and 3 tips; use empty arrays when nothing stands out.\n")
	b.WriteString(llm.JSONOnlyInstruction)
	return b.String()
}
