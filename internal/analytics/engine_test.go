package analytics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/finchat/internal/snapshot"
)

var fixedNow = time.Date(2026, time.March, 31, 15, 30, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(DefaultPolicy(), func() time.Time { return fixedNow })
}

func out(id, date, category string, amount float64) snapshot.Transaction {
	return snapshot.Transaction{ID: id, Date: date, Category: category, Amount: amount, Direction: snapshot.Outflow}
}

func TestPercentChangeZeroBase(t *testing.T) {
	e := newTestEngine()
	assert.Equal(t, 100.0, e.PercentChange(0, 50))
	assert.Equal(t, 0.0, e.PercentChange(0, 0))
	assert.Equal(t, 50.0, e.PercentChange(100, 150))
	assert.Equal(t, -25.0, e.PercentChange(200, 150))

	custom := NewEngine(Policy{ZeroBaseChange: 250}, nil)
	assert.Equal(t, 250.0, custom.PercentChange(0, 1))
}

func TestResolveRange(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		selector   string
		start, end time.Time
	}{
		{RangeThisWeek, day(2026, 3, 24), day(2026, 3, 31)},
		{RangeThisMonth, day(2026, 3, 1), day(2026, 3, 31)},
		{RangeLastMonth, day(2026, 2, 1), day(2026, 2, 28)},
		{RangeLast3Months, day(2025, 12, 31), day(2026, 3, 31)},
		{RangeLast6Months, day(2025, 9, 30), day(2026, 3, 31)},
		{RangeThisYear, day(2026, 1, 1), day(2026, 3, 31)},
		{"whenever", day(2026, 3, 1), day(2026, 3, 31)},
	}
	for _, tc := range cases {
		r := resolveRange(tc.selector, fixedNow)
		assert.True(t, r.start.Equal(tc.start), "%s start = %v, want %v", tc.selector, r.start, tc.start)
		assert.True(t, r.end.Equal(tc.end), "%s end = %v, want %v", tc.selector, r.end, tc.end)
	}
}

func TestAddMonthsClampsDay(t *testing.T) {
	got := addMonths(time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), -1)
	assert.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), got)
}

func TestCategorySpending(t *testing.T) {
	snap := snapshot.Snapshot{Transactions: []snapshot.Transaction{
		out("1", "2026-03-02", "Rent", 300),
		out("2", "2026-03-03", "Food", 500),
		out("3", "2026-03-04T08:00:00Z", "Taxi", 300),
		out("4", "not-a-date", "Food", 9999),
		out("5", "2025-01-01", "Food", 7777),
		{ID: "6", Date: "2026-03-05", Category: "Salary", Amount: 10000, Direction: snapshot.Inflow},
		out("7", "2026-03-06", "Food", 100),
	}}

	res := newTestEngine().CategorySpending(snap, RangeThisMonth, "taxi")

	want := CategorySpending{
		Header:        Header{Type: TypeCategorySpending},
		TimeRange:     RangeThisMonth,
		TotalSpending: 1200,
		TopCategories: []CategoryShare{
			{Category: "Food", Amount: 600, Percentage: 50},
			{Category: "Rent", Amount: 300, Percentage: 25},
			{Category: "Taxi", Amount: 300, Percentage: 25},
		},
		CategoryCount: 3,
		Focus:         &CategoryShare{Category: "Taxi", Amount: 300, Percentage: 25},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("CategorySpending mismatch (-want +got):\n%s", diff)
	}
}

func TestCategorySpendingPercentagesSumTo100(t *testing.T) {
	snap := snapshot.Snapshot{Transactions: []snapshot.Transaction{
		out("1", "2026-03-02", "A", 33.3),
		out("2", "2026-03-02", "B", 17.1),
		out("3", "2026-03-03", "C", 49.9),
		out("4", "2026-03-04", "D", 0.7),
	}}
	res := newTestEngine().CategorySpending(snap, RangeThisMonth, "")
	sum := 0.0
	for _, c := range res.TopCategories {
		sum += c.Percentage
	}
	assert.InDelta(t, 100, sum, 1e-9)
}

func TestCategorySpendingCapsAtTen(t *testing.T) {
	var txs []snapshot.Transaction
	for i := 0; i < 12; i++ {
		txs = append(txs, out("x", "2026-03-10", string(rune('A'+i)), float64(i+1)))
	}
	res := newTestEngine().CategorySpending(snapshot.Snapshot{Transactions: txs}, RangeThisMonth, "")
	assert.Len(t, res.TopCategories, 10)
	assert.Equal(t, 12, res.CategoryCount)
	assert.Equal(t, "L", res.TopCategories[0].Category)
}

func TestMonthlyComparison(t *testing.T) {
	snap := snapshot.Snapshot{MonthlyTotals: []snapshot.MonthlyTotal{
		{Month: "2026-02", Income: 1000, Expense: 800},
		{Month: "2025-12", Income: 900, Expense: 900},
		{Month: "2026-03", Income: 1200, Expense: 800},
		{Month: "2026-01", Income: 1000, Expense: 700},
	}}

	res := newTestEngine().MonthlyComparison(snap, 3)

	require.Empty(t, res.Error)
	months := []string{}
	for _, m := range res.MonthlyData {
		months = append(months, m.Month)
	}
	assert.Equal(t, []string{"2026-01", "2026-02", "2026-03"}, months)
	require.NotNil(t, res.IncomeChangePercent)
	assert.InDelta(t, 20, *res.IncomeChangePercent, 1e-9)
	assert.InDelta(t, 0, *res.ExpenseChangePercent, 1e-9)
	assert.Equal(t, TrendImproving, res.Trend)
	assert.Equal(t, 400.0, res.MonthlyData[2].Savings)
}

func TestMonthlyComparisonSingleMonthIsInsufficient(t *testing.T) {
	snap := snapshot.Snapshot{MonthlyTotals: []snapshot.MonthlyTotal{{Month: "2026-03", Income: 1, Expense: 2}}}
	res := newTestEngine().MonthlyComparison(snap, 3)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Trend)
	assert.Nil(t, res.IncomeChangePercent)
	assert.Len(t, res.MonthlyData, 1)
}

func TestMonthlyComparisonNoMonths(t *testing.T) {
	res := newTestEngine().MonthlyComparison(snapshot.Snapshot{}, 0)
	assert.Equal(t, errInsufficientMonthly, res.Error)
	assert.Equal(t, 3, res.MonthCount)
}

func TestSpendingTrend(t *testing.T) {
	snap := snapshot.Snapshot{MonthlyTotals: []snapshot.MonthlyTotal{
		{Month: "2026-03", Expense: 121},
		{Month: "2026-01", Expense: 100},
		{Month: "2026-02", Expense: 110},
	}}
	res := newTestEngine().SpendingTrend(snap, RangeLast3Months)
	assert.Equal(t, []float64{100, 110, 121}, res.MonthlyExpenses)
	assert.InDelta(t, 10, res.AverageChangePercent, 1e-9)
	assert.Equal(t, TrendIncreasing, res.Trend)

	flat := newTestEngine().SpendingTrend(snapshot.Snapshot{MonthlyTotals: []snapshot.MonthlyTotal{
		{Month: "2026-01", Expense: 100}, {Month: "2026-02", Expense: 97},
	}}, "")
	assert.Equal(t, TrendStable, flat.Trend)

	short := newTestEngine().SpendingTrend(snapshot.Snapshot{MonthlyTotals: []snapshot.MonthlyTotal{{Month: "2026-01"}}}, "")
	assert.Equal(t, errInsufficientTrend, short.Error)
}

func TestSavingsPotential(t *testing.T) {
	e := newTestEngine()

	res := e.SavingsPotential(snapshot.Snapshot{MonthlyIncomeAvg: 1000, MonthlyExpenseAvg: 950})
	assert.Equal(t, 50.0, res.CurrentSavings)
	assert.Equal(t, 200.0, res.PotentialSavings)
	assert.Equal(t, 150.0, res.SavingsGap)
	assert.Equal(t, RecommendationLow, res.Recommendation)

	res = e.SavingsPotential(snapshot.Snapshot{MonthlyIncomeAvg: 1000, MonthlyExpenseAvg: 850, SavingsRate: 0.15})
	assert.Equal(t, RecommendationModerate, res.Recommendation)

	res = e.SavingsPotential(snapshot.Snapshot{MonthlyIncomeAvg: 1000})
	assert.Equal(t, 1000.0, res.CurrentSavings)
	assert.Equal(t, RecommendationGood, res.Recommendation)

	res = e.SavingsPotential(snapshot.Snapshot{})
	assert.Equal(t, errInsufficientIncome, res.Error)
}

func TestSpendingPatterns(t *testing.T) {
	snap := snapshot.Snapshot{Transactions: []snapshot.Transaction{
		out("1", "2026-03-02", "A", 10),
		out("2", "2026-03-02T09:00:00+07:00", "B", 30),
		out("3", "2026-03-05", "A", 25),
		out("4", "2026-03-09", "A", 5),
		out("5", "garbage", "A", 1000),
	}}
	res := newTestEngine().SpendingPatterns(snap, RangeThisMonth)
	assert.Equal(t, 3, res.TotalDays)
	assert.Equal(t, []DaySpend{{Date: "2026-03-02", Amount: 40}, {Date: "2026-03-05", Amount: 25}, {Date: "2026-03-09", Amount: 5}}, res.TopDays)
	assert.InDelta(t, 70.0/3, res.AverageDailySpending, 1e-9)
}

func TestBudgetVsActual(t *testing.T) {
	snap := snapshot.Snapshot{Transactions: []snapshot.Transaction{
		out("1", "2026-02-10", "A", 10),
		out("2", "2026-03-02", "A", 99),
	}}
	res := newTestEngine().BudgetVsActual(snap, RangeLastMonth)
	assert.Equal(t, 10.0, res.ActualExpense)
	assert.Contains(t, res.Note, "not available")
}

func TestRunAliasesAndDefault(t *testing.T) {
	e := newTestEngine()
	cases := map[string]Type{
		"COMPARE_MONTHS":     TypeMonthlyComparison,
		"TREND_ANALYSIS":     TypeSpendingTrend,
		"CATEGORY_BREAKDOWN": TypeCategorySpending,
		"GENERIC":            TypeCategorySpending,
		"budget":             TypeBudgetVsActual,
		"SAVINGS":            TypeSavingsPotential,
		"PATTERNS":           TypeSpendingPatterns,
		"nonsense":           TypeCategorySpending,
	}
	for alias, want := range cases {
		assert.Equal(t, want, e.Run(snapshot.Snapshot{}, Query{AnalysisType: alias}).ResultType(), alias)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	snap := snapshot.Snapshot{
		Transactions: []snapshot.Transaction{
			out("1", "2026-03-02", "Food", 10),
			out("2", "2026-03-02", "Rent", 10),
			out("3", "2026-03-03", "Taxi", 10),
			out("4", "2026-03-04", "Gift", 5),
		},
		MonthlyTotals: []snapshot.MonthlyTotal{{Month: "2026-01", Expense: 3}, {Month: "2026-02", Expense: 4}},
	}
	e := newTestEngine()
	for _, kind := range []string{"CATEGORY_SPENDING", "SPENDING_PATTERNS", "SPENDING_TREND", "MONTHLY_COMPARISON"} {
		first, err := json.Marshal(e.Run(snap, Query{AnalysisType: kind, TimeRange: RangeThisMonth}))
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := json.Marshal(e.Run(snap, Query{AnalysisType: kind, TimeRange: RangeThisMonth}))
			require.NoError(t, err)
			require.Equal(t, string(first), string(again))
		}
	}
}

func TestResultEncodesTypeTag(t *testing.T) {
	b, err := json.Marshal(newTestEngine().Run(snapshot.Snapshot{}, Query{AnalysisType: "SAVINGS"}))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "SAVINGS_POTENTIAL", m["type"])
	assert.Equal(t, errInsufficientIncome, m["error"])
	assert.False(t, math.IsNaN(m["savingsGap"].(float64)))
}
