package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/finchat/internal/analytics"
	"github.com/antoniostano/finchat/internal/llm"
	"github.com/antoniostano/finchat/internal/routing"
	"github.com/antoniostano/finchat/internal/snapshot"
)

const analysisApology = "Sorry, I ran into a problem while analysing your data. Please try again later."

// AnalyzeSpending runs the requested analysis and narrates it. The result is
// returned as the reply data.
func (d *Dispatcher) AnalyzeSpending(ctx context.Context, userID string, in routing.AnalyzeSpending, narrative string) Reply {
	snap, err := d.snapshots.Get(ctx, userID)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Msg("analytics agent: snapshot unavailable")
		return apology(analysisApology, err)
	}

	res := d.engine.Run(snap, analytics.Query{
		AnalysisType: in.AnalysisType,
		TimeRange:    in.TimeRange,
		Category:     in.Category,
	})

	prompt := buildAnalysisPrompt(res, in.TimeRange, narrative)
	text, err := llm.GenerateText(ctx, d.client, prompt)
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", userID).Str("analysis", string(res.ResultType())).Msg("analysis narration failed, using template")
		d.fallback(agentAnalytics)
		text = AnalysisFallbackText(res)
	}

	return Reply{
		Text:        text,
		Suggestions: AnalysisSuggestions(res),
		Data:        res,
	}
}

func buildAnalysisPrompt(res analytics.Result, timeRange, narrative string) string {
	var b strings.Builder
	b.WriteString("You are a personal finance expert. Explain the spending analysis below in plain, friendly language and make it actionable.\n\n")
	fmt.Fprintf(&b, "Analysis type: %s\n", res.ResultType())
	fmt.Fprintf(&b, "Time range: %s\n\n", orDefault(timeRange, "THIS_MONTH"))
	b.WriteString("Analysis result (JSON):\n")
	b.WriteString(prettyJSON(res))
	b.WriteString("\n\nUser financial context:\n")
	b.WriteString(orDefault(strings.TrimSpace(narrative), "No context available"))
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("1. Explain the result clearly.\n")
	b.WriteString("2. Point out what stands out, good or bad.\n")
	b.WriteString("3. Give 2-3 concrete actions based on the result.\n")
	b.WriteString("4. Format amounts with thousands separators (for example 1,000,000 VND).\n")
	b.WriteString("5. Do not repeat the raw data, focus on the insights.\n\n")
	b.WriteString("Answer:")
	return b.String()
}

// AnalysisFallbackText is the templated narration used when the model is unavailable.
func AnalysisFallbackText(res analytics.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis %s:\n\n", res.ResultType())
	if msg := res.Failure(); msg != "" {
		b.WriteString("Error: ")
		b.WriteString(msg)
		return b.String()
	}

	switch r := res.(type) {
	case analytics.CategorySpending:
		fmt.Fprintf(&b, "Total spending: %s VND across %d categories.\n", snapshot.FormatAmount(r.TotalSpending), r.CategoryCount)
		for _, c := range r.TopCategories {
			fmt.Fprintf(&b, "- %s: %s VND (%.1f%%)\n", c.Category, snapshot.FormatAmount(c.Amount), c.Percentage)
		}
	case analytics.MonthlyComparison:
		fmt.Fprintf(&b, "Trend over the last %d months: %s.\n", r.MonthCount, r.Trend)
	case analytics.SpendingTrend:
		fmt.Fprintf(&b, "Spending is %s, averaging %.1f%% change per month.\n", r.Trend, r.AverageChangePercent)
	case analytics.BudgetVsActual:
		fmt.Fprintf(&b, "Actual spending: %s VND. %s\n", snapshot.FormatAmount(r.ActualExpense), r.Note)
	case analytics.SavingsPotential:
		fmt.Fprintf(&b, "You save %s VND per month (%.1f%% of income). Target: %s VND. Rating: %s.\n",
			snapshot.FormatAmount(r.CurrentSavings), r.SavingsRate*100, snapshot.FormatAmount(r.PotentialSavings), r.Recommendation)
	case analytics.SpendingPatterns:
		fmt.Fprintf(&b, "Average daily spending: %s VND over %d days.\n", snapshot.FormatAmount(r.AverageDailySpending), r.TotalDays)
	default:
		b.WriteString("The analysis is ready. See the details in the data section.")
	}
	return strings.TrimRight(b.String(), "\n")
}

// AnalysisSuggestions returns follow-up actions for a result type.
func AnalysisSuggestions(res analytics.Result) []string {
	out := []string{}
	switch res.ResultType() {
	case analytics.TypeCategorySpending:
		out = append(out, "VIEW_DETAILED_REPORT", "CREATE_BUDGET")
	case analytics.TypeMonthlyComparison, analytics.TypeSpendingTrend:
		out = append(out, "VIEW_MONTHLY_CHART", "SET_SPENDING_GOAL")
	case analytics.TypeSavingsPotential:
		out = append(out, "CREATE_SAVINGS_GOAL", "VIEW_INVESTMENT_OPTIONS")
	case analytics.TypeBudgetVsActual:
		out = append(out, "UPDATE_BUDGET", "VIEW_BUDGET_DETAILS")
	}
	if sp, ok := res.(analytics.SavingsPotential); ok && sp.Recommendation == analytics.RecommendationLow {
		out = append(out, "REDUCE_SPENDING")
	}
	return out
}
