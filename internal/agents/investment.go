package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/finchat/internal/llm"
	"github.com/antoniostano/finchat/internal/routing"
	"github.com/antoniostano/finchat/internal/snapshot"
)

const investmentApology = "Sorry, I ran into a problem while preparing investment advice. Please try again later."

// InvestmentRecommendation is the data attached to an investment advice reply.
type InvestmentRecommendation struct {
	Type             string             `json:"type"`
	InvestableAmount float64            `json:"investableAmount"`
	RiskTolerance    string             `json:"riskTolerance"`
	InvestmentType   string             `json:"investmentType,omitempty"`
	Options          []InvestmentOption `json:"options"`
	Allocation       Allocation         `json:"allocation"`
}

func (d *Dispatcher) RecommendInvestment(ctx context.Context, userID string, in routing.RecommendInvestment, narrative string) Reply {
	snap, err := d.snapshots.Get(ctx, userID)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Msg("investment agent: snapshot unavailable")
		return apology(investmentApology, err)
	}

	amount := d.policy.InvestableAmount(snap.TotalBalance, snap.MonthlyExpenseAvg)
	risk := normalizeRisk(in.RiskTolerance)
	if risk == "" {
		risk = d.policy.InferRisk(snap.MonthlyIncomeAvg, snap.SavingsRate)
	}

	rec := InvestmentRecommendation{
		Type:             "INVESTMENT_RECOMMENDATION",
		InvestableAmount: amount,
		RiskTolerance:    risk,
		InvestmentType:   in.InvestmentType,
		Options:          d.catalog.InvestmentsFor(amount, risk, in.InvestmentType, d.policy.TopInvestmentOptions),
		Allocation:       Allocate(amount, risk),
	}

	text, err := llm.GenerateText(ctx, d.client, buildInvestmentPrompt(rec, narrative))
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("investment narration failed, using template")
		d.fallback(agentInvestment)
		text = InvestmentFallbackText(rec)
	}

	suggestions := []string{"VIEW_INVESTMENT_OPTIONS", "CALCULATE_EXPECTED_RETURN"}
	if risk == RiskLow {
		suggestions = append(suggestions, "EXPLORE_HIGHER_RISK_OPTIONS")
	}
	return Reply{Text: text, Suggestions: suggestions, Data: rec}
}

func buildInvestmentPrompt(rec InvestmentRecommendation, narrative string) string {
	var b strings.Builder
	b.WriteString("You are an investment advisor. Advise the user briefly based on the information below.\n\n")
	fmt.Fprintf(&b, "Investable amount: %s VND\n", snapshot.FormatAmount(rec.InvestableAmount))
	fmt.Fprintf(&b, "Risk tolerance: %s\n", rec.RiskTolerance)
	fmt.Fprintf(&b, "Investment type of interest: %s\n\n", orDefault(rec.InvestmentType, "Any"))
	b.WriteString("Suggested options:\n")
	b.WriteString(prettyJSON(rec.Options))
	b.WriteString("\n\nRecommended allocation:\n")
	b.WriteString(prettyJSON(rec.Allocation))
	b.WriteString("\n\nUser financial context:\n")
	b.WriteString(orDefault(strings.TrimSpace(narrative), "No context available"))
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("1. Explain how much the user can invest and why.\n")
	b.WriteString("2. Introduce the 3-4 most suitable options with pros and cons.\n")
	b.WriteString("3. Explain the allocation and compare expected return against risk.\n")
	b.WriteString("4. Warn about risks and stress diversification.\n")
	b.WriteString("5. Format amounts with thousands separators.\n\n")
	b.WriteString("Answer:")
	return b.String()
}

// InvestmentFallbackText renders options and allocation without the model.
func InvestmentFallbackText(rec InvestmentRecommendation) string {
	var b strings.Builder
	b.WriteString("## Suggested investment options\n\n")
	if len(rec.Options) == 0 {
		b.WriteString("No option matches your current investable amount.\n\n")
	}
	for _, o := range rec.Options {
		fmt.Fprintf(&b, "### %s\n", o.Name)
		fmt.Fprintf(&b, "- Risk: %s\n", o.RiskLevel)
		fmt.Fprintf(&b, "- Expected return: %.1f%%/year\n", o.ExpectedReturn)
		fmt.Fprintf(&b, "- %s\n\n", o.Description)
	}

	b.WriteString("## Recommended allocation\n\n")
	for _, item := range rec.Allocation.Items {
		fmt.Fprintf(&b, "- %s: %.0f%% (%s VND)\n", item.Type, item.Percentage, snapshot.FormatAmount(item.Amount))
	}
	return strings.TrimRight(b.String(), "\n")
}
