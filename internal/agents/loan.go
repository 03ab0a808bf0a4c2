package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/finchat/internal/llm"
	"github.com/antoniostano/finchat/internal/routing"
	"github.com/antoniostano/finchat/internal/snapshot"
)

const loanApology = "Sorry, I ran into a problem while preparing loan advice. Please try again later."

// LoanRecommendation is the data attached to a loan advice reply.
type LoanRecommendation struct {
	Type        string         `json:"type"`
	Eligibility LoanAssessment `json:"eligibility"`
	Providers   []LoanProvider `json:"providers"`
	LoanAmount  *float64       `json:"loanAmount"`
	Purpose     string         `json:"purpose,omitempty"`
}

func (d *Dispatcher) RecommendLoan(ctx context.Context, userID string, in routing.RecommendLoan, narrative string) Reply {
	snap, err := d.snapshots.Get(ctx, userID)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Msg("loan agent: snapshot unavailable")
		return apology(loanApology, err)
	}

	rec := LoanRecommendation{
		Type:        "LOAN_RECOMMENDATION",
		Eligibility: d.policy.AssessLoan(in.LoanAmount, snap.MonthlyIncomeAvg, snap.MonthlyExpenseAvg),
		Providers:   d.catalog.LoansFor(in.LoanAmount, d.policy.TopLoanProviders),
		LoanAmount:  in.LoanAmount,
		Purpose:     in.Purpose,
	}

	text, err := llm.GenerateText(ctx, d.client, buildLoanPrompt(rec, narrative))
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("loan narration failed, using template")
		d.fallback(agentLoan)
		text = LoanFallbackText(rec)
	}

	suggestions := []string{"IMPROVE_FINANCIAL_HEALTH", "REDUCE_EXPENSES"}
	if rec.Eligibility.Eligible {
		suggestions = []string{"VIEW_LOAN_PROVIDERS", "CALCULATE_LOAN_PAYMENT"}
	}
	return Reply{Text: text, Suggestions: suggestions, Data: rec}
}

func buildLoanPrompt(rec LoanRecommendation, narrative string) string {
	amount := "Not specified"
	if rec.LoanAmount != nil {
		amount = snapshot.FormatAmount(*rec.LoanAmount) + " VND"
	}

	var b strings.Builder
	b.WriteString("You are a financial advisor specialised in consumer loans. Advise the user based on the information below.\n\n")
	fmt.Fprintf(&b, "Requested amount: %s\n", amount)
	fmt.Fprintf(&b, "Purpose: %s\n\n", orDefault(rec.Purpose, "Not specified"))
	b.WriteString("Eligibility assessment:\n")
	b.WriteString(prettyJSON(rec.Eligibility))
	b.WriteString("\n\nRecommended providers:\n")
	b.WriteString(prettyJSON(rec.Providers))
	b.WriteString("\n\nUser financial context:\n")
	b.WriteString(orDefault(strings.TrimSpace(narrative), "No context available"))
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("1. Explain clearly whether the user can afford the loan.\n")
	b.WriteString("2. If eligible, introduce the 2-3 best providers with their pros and cons.\n")
	b.WriteString("3. If not eligible, explain why and give concrete advice.\n")
	b.WriteString("4. Compare rates and conditions and relate them to the purpose.\n")
	b.WriteString("5. Format amounts with thousands separators and warn about risks where needed.\n\n")
	b.WriteString("Answer:")
	return b.String()
}

// LoanFallbackText renders the assessment and providers without the model.
func LoanFallbackText(rec LoanRecommendation) string {
	var b strings.Builder
	b.WriteString("## Loan eligibility\n\n")
	if rec.Eligibility.Eligible {
		b.WriteString("Eligible: ")
	} else {
		b.WriteString("Not eligible: ")
	}
	b.WriteString(rec.Eligibility.Reason)
	b.WriteString("\n\n")
	b.WriteString(rec.Eligibility.Recommendation)
	b.WriteString("\n\n")

	if len(rec.Providers) > 0 {
		b.WriteString("## Recommended providers\n\n")
		for _, p := range rec.Providers {
			fmt.Fprintf(&b, "### %s\n", p.Name)
			fmt.Fprintf(&b, "- Interest rate: %.1f%%/year\n", p.InterestRate)
			fmt.Fprintf(&b, "- Term: %d months\n", p.TermMonths)
			fmt.Fprintf(&b, "- Requirements: %s\n\n", p.Eligibility)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
