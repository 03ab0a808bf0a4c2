package analytics

import (
	"strings"

	"github.com/antoniostano/finchat/internal/snapshot"
)

// Query selects an analysis. AnalysisType accepts the router's vocabulary as
// aliases; unknown values run a category breakdown.
type Query struct {
	AnalysisType string
	TimeRange    string
	Category     string
}

// ResolveType maps an analysis name or alias to a result type.
func ResolveType(analysisType string) Type {
	switch strings.ToUpper(strings.TrimSpace(analysisType)) {
	case "MONTHLY_COMPARISON", "COMPARE_MONTHS":
		return TypeMonthlyComparison
	case "SPENDING_TREND", "TREND", "TREND_ANALYSIS":
		return TypeSpendingTrend
	case "BUDGET_VS_ACTUAL", "BUDGET":
		return TypeBudgetVsActual
	case "SAVINGS_POTENTIAL", "SAVINGS":
		return TypeSavingsPotential
	case "SPENDING_PATTERNS", "PATTERNS":
		return TypeSpendingPatterns
	default:
		return TypeCategorySpending
	}
}

// Run dispatches q to the matching analysis.
func (e *Engine) Run(snap snapshot.Snapshot, q Query) Result {
	switch ResolveType(q.AnalysisType) {
	case TypeMonthlyComparison:
		return e.MonthlyComparison(snap, e.policy.DefaultMonthCount)
	case TypeSpendingTrend:
		return e.SpendingTrend(snap, q.TimeRange)
	case TypeBudgetVsActual:
		return e.BudgetVsActual(snap, q.TimeRange)
	case TypeSavingsPotential:
		return e.SavingsPotential(snap)
	case TypeSpendingPatterns:
		return e.SpendingPatterns(snap, q.TimeRange)
	default:
		return e.CategorySpending(snap, q.TimeRange, q.Category)
	}
}
