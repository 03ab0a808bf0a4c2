package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/antoniostano/finchat/internal/snapshot"
)

// Policy holds the tunable constants of the analyses.
type Policy struct {
	// ZeroBaseChange is the percent change reported when the old value is 0
	// and the new value is positive.
	ZeroBaseChange float64
	// TrendThreshold is the average percent change beyond which a spending
	// trend counts as increasing or decreasing.
	TrendThreshold float64
	// SavingsTarget is the share of income considered a healthy saving.
	SavingsTarget       float64
	LowSavingsRate      float64
	ModerateSavingsRate float64
	TopCategories       int
	TopDays             int
	DefaultMonthCount   int
}

func DefaultPolicy() Policy {
	return Policy{
		ZeroBaseChange:      100,
		TrendThreshold:      5,
		SavingsTarget:       0.2,
		LowSavingsRate:      0.1,
		ModerateSavingsRate: 0.2,
		TopCategories:       10,
		TopDays:             5,
		DefaultMonthCount:   3,
	}
}

const (
	errInsufficientMonthly    = "Insufficient monthly data"
	errInsufficientComparison = "Insufficient data for month-over-month comparison"
	errInsufficientTrend      = "Insufficient data for trend analysis"
	errInsufficientIncome     = "Insufficient income data"
	budgetUnavailableNote     = "Budget data not available in context. This analysis will be enhanced when budget sync is implemented."
)

// Engine runs deterministic analyses over a snapshot. The clock is injected
// so range filters are reproducible.
type Engine struct {
	policy Policy
	now    func() time.Time
}

func NewEngine(policy Policy, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{policy: policy, now: now}
}

func (e *Engine) Policy() Policy { return e.policy }

// PercentChange returns (new-old)/old*100 with the zero-base rule applied.
func (e *Engine) PercentChange(oldValue, newValue float64) float64 {
	if oldValue == 0 {
		if newValue > 0 {
			return e.policy.ZeroBaseChange
		}
		return 0
	}
	return (newValue - oldValue) / oldValue * 100
}

func percentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return value / total * 100
}

// outflowsInRange returns outflow transactions whose date parses and falls in the range.
func (e *Engine) outflowsInRange(snap snapshot.Snapshot, selector string) []outflow {
	r := resolveRange(selector, e.now())
	out := make([]outflow, 0, len(snap.Transactions))
	for _, tx := range snap.Transactions {
		if !strings.EqualFold(string(tx.Direction), string(snapshot.Outflow)) {
			continue
		}
		day, ok := parseDay(tx.Date)
		if !ok || !r.contains(day) {
			continue
		}
		out = append(out, outflow{day: day, category: tx.Category, amount: tx.Amount})
	}
	return out
}

type outflow struct {
	day      time.Time
	category string
	amount   float64
}

// orderedSums accumulates amounts per key, remembering first-seen order.
type orderedSums struct {
	keys  []string
	index map[string]int
	sums  []float64
}

func newOrderedSums() *orderedSums {
	return &orderedSums{index: map[string]int{}}
}

func (o *orderedSums) add(key string, amount float64) {
	i, ok := o.index[key]
	if !ok {
		i = len(o.keys)
		o.index[key] = i
		o.keys = append(o.keys, key)
		o.sums = append(o.sums, 0)
	}
	o.sums[i] += amount
}

func (o *orderedSums) total() float64 {
	t := 0.0
	for _, v := range o.sums {
		t += v
	}
	return t
}

// ranked returns key positions by amount descending; ties keep first-seen order.
func (o *orderedSums) ranked() []int {
	idx := make([]int, len(o.keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return o.sums[idx[a]] > o.sums[idx[b]] })
	return idx
}

func (e *Engine) CategorySpending(snap snapshot.Snapshot, timeRange, category string) CategorySpending {
	sums := newOrderedSums()
	for _, tx := range e.outflowsInRange(snap, timeRange) {
		sums.add(tx.category, tx.amount)
	}
	total := sums.total()

	res := CategorySpending{
		Header:        Header{Type: TypeCategorySpending},
		TimeRange:     timeRange,
		TotalSpending: total,
		TopCategories: []CategoryShare{},
		CategoryCount: len(sums.keys),
	}
	for n, i := range sums.ranked() {
		share := CategoryShare{
			Category:   sums.keys[i],
			Amount:     sums.sums[i],
			Percentage: percentage(sums.sums[i], total),
		}
		if n < e.policy.TopCategories {
			res.TopCategories = append(res.TopCategories, share)
		}
		if category != "" && res.Focus == nil && strings.EqualFold(share.Category, category) {
			focus := share
			res.Focus = &focus
		}
	}
	return res
}

func (e *Engine) MonthlyComparison(snap snapshot.Snapshot, monthCount int) MonthlyComparison {
	if monthCount <= 0 {
		monthCount = e.policy.DefaultMonthCount
	}
	res := MonthlyComparison{
		Header:     Header{Type: TypeMonthlyComparison},
		MonthCount: monthCount,
	}
	if len(snap.MonthlyTotals) == 0 {
		res.Error = errInsufficientMonthly
		return res
	}

	months := make([]snapshot.MonthlyTotal, len(snap.MonthlyTotals))
	copy(months, snap.MonthlyTotals)
	sort.SliceStable(months, func(i, j int) bool { return months[i].Month > months[j].Month })
	if len(months) > monthCount {
		months = months[:monthCount]
	}
	// Oldest to newest.
	for i, j := 0, len(months)-1; i < j; i, j = i+1, j-1 {
		months[i], months[j] = months[j], months[i]
	}

	res.MonthlyData = make([]MonthSummary, 0, len(months))
	for _, m := range months {
		res.MonthlyData = append(res.MonthlyData, MonthSummary{
			Month:   m.Month,
			Income:  m.Income,
			Expense: m.Expense,
			Savings: m.Income - m.Expense,
		})
	}

	if len(months) < 2 {
		res.Error = errInsufficientComparison
		return res
	}

	latest, previous := months[len(months)-1], months[len(months)-2]
	incomeChange := e.PercentChange(previous.Income, latest.Income)
	expenseChange := e.PercentChange(previous.Expense, latest.Expense)
	res.IncomeChangePercent = &incomeChange
	res.ExpenseChangePercent = &expenseChange
	switch {
	case incomeChange > expenseChange:
		res.Trend = TrendImproving
	case expenseChange > incomeChange:
		res.Trend = TrendWorsening
	default:
		res.Trend = TrendStable
	}
	return res
}

func (e *Engine) SpendingTrend(snap snapshot.Snapshot, timeRange string) SpendingTrend {
	res := SpendingTrend{Header: Header{Type: TypeSpendingTrend}}
	if len(snap.MonthlyTotals) < 2 {
		res.Error = errInsufficientTrend
		return res
	}

	months := make([]snapshot.MonthlyTotal, len(snap.MonthlyTotals))
	copy(months, snap.MonthlyTotals)
	sort.SliceStable(months, func(i, j int) bool { return months[i].Month < months[j].Month })

	expenses := make([]float64, len(months))
	for i, m := range months {
		expenses[i] = m.Expense
	}
	sum := 0.0
	for i := 1; i < len(expenses); i++ {
		sum += e.PercentChange(expenses[i-1], expenses[i])
	}
	avg := sum / float64(len(expenses)-1)

	res.TimeRange = timeRange
	res.AverageChangePercent = avg
	res.MonthlyExpenses = expenses
	switch {
	case avg > e.policy.TrendThreshold:
		res.Trend = TrendIncreasing
	case avg < -e.policy.TrendThreshold:
		res.Trend = TrendDecreasing
	default:
		res.Trend = TrendStable
	}
	return res
}

func (e *Engine) BudgetVsActual(snap snapshot.Snapshot, timeRange string) BudgetVsActual {
	actual := 0.0
	for _, tx := range e.outflowsInRange(snap, timeRange) {
		actual += tx.amount
	}
	return BudgetVsActual{
		Header:        Header{Type: TypeBudgetVsActual},
		TimeRange:     timeRange,
		ActualExpense: actual,
		Note:          budgetUnavailableNote,
	}
}

// SavingsPotential grades the synced savings rate, falling back to the rate
// implied by average income and expense when none was synced.
func (e *Engine) SavingsPotential(snap snapshot.Snapshot) SavingsPotential {
	res := SavingsPotential{Header: Header{Type: TypeSavingsPotential}}
	income := snap.MonthlyIncomeAvg
	if income <= 0 {
		res.Error = errInsufficientIncome
		return res
	}
	expense := snap.MonthlyExpenseAvg
	current := income - expense
	target := income * e.policy.SavingsTarget

	rate := snap.SavingsRate
	if rate == 0 {
		rate = current / income
	}

	res.MonthlyIncome = income
	res.MonthlyExpense = expense
	res.CurrentSavings = current
	res.SavingsRate = rate
	res.PotentialSavings = target
	res.SavingsGap = target - current
	switch {
	case rate < e.policy.LowSavingsRate:
		res.Recommendation = RecommendationLow
	case rate < e.policy.ModerateSavingsRate:
		res.Recommendation = RecommendationModerate
	default:
		res.Recommendation = RecommendationGood
	}
	return res
}

func (e *Engine) SpendingPatterns(snap snapshot.Snapshot, timeRange string) SpendingPatterns {
	sums := newOrderedSums()
	for _, tx := range e.outflowsInRange(snap, timeRange) {
		sums.add(tx.day.Format("2006-01-02"), tx.amount)
	}

	res := SpendingPatterns{
		Header:    Header{Type: TypeSpendingPatterns},
		TimeRange: timeRange,
		TopDays:   []DaySpend{},
		TotalDays: len(sums.keys),
	}
	for n, i := range sums.ranked() {
		if n >= e.policy.TopDays {
			break
		}
		res.TopDays = append(res.TopDays, DaySpend{Date: sums.keys[i], Amount: sums.sums[i]})
	}
	if len(sums.keys) > 0 {
		res.AverageDailySpending = sums.total() / float64(len(sums.keys))
	}
	return res
}
