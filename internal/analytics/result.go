package analytics

// Type discriminates analysis results.
type Type string

const (
	TypeCategorySpending  Type = "CATEGORY_SPENDING"
	TypeMonthlyComparison Type = "MONTHLY_COMPARISON"
	TypeSpendingTrend     Type = "SPENDING_TREND"
	TypeBudgetVsActual    Type = "BUDGET_VS_ACTUAL"
	TypeSavingsPotential  Type = "SAVINGS_POTENTIAL"
	TypeSpendingPatterns  Type = "SPENDING_PATTERNS"
)

// Result is the closed set of analysis results. Every variant encodes its
// Type under the "type" key.
type Result interface {
	ResultType() Type
	// Failure is the insufficient-data message, or "" for a complete result.
	Failure() string
	sealed()
}

// Header carries the fields shared by every result.
type Header struct {
	Type  Type   `json:"type"`
	Error string `json:"error,omitempty"`
}

func (h Header) ResultType() Type { return h.Type }
func (h Header) Failure() string  { return h.Error }
func (Header) sealed()            {}

type CategoryShare struct {
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

type CategorySpending struct {
	Header
	TimeRange     string          `json:"timeRange"`
	TotalSpending float64         `json:"totalSpending"`
	TopCategories []CategoryShare `json:"topCategories"`
	CategoryCount int             `json:"categoryCount"`
	// Focus is the requested category's share when one was asked for and found.
	Focus *CategoryShare `json:"focusCategory,omitempty"`
}

type MonthSummary struct {
	Month   string  `json:"month"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Savings float64 `json:"savings"`
}

type MonthlyComparison struct {
	Header
	MonthCount           int            `json:"monthCount"`
	MonthlyData          []MonthSummary `json:"monthlyData,omitempty"`
	IncomeChangePercent  *float64       `json:"incomeChangePercent,omitempty"`
	ExpenseChangePercent *float64       `json:"expenseChangePercent,omitempty"`
	Trend                string         `json:"trend,omitempty"`
}

type SpendingTrend struct {
	Header
	TimeRange            string    `json:"timeRange,omitempty"`
	Trend                string    `json:"trend,omitempty"`
	AverageChangePercent float64   `json:"averageChangePercent"`
	MonthlyExpenses      []float64 `json:"monthlyExpenses,omitempty"`
}

type BudgetVsActual struct {
	Header
	TimeRange     string  `json:"timeRange"`
	ActualExpense float64 `json:"actualExpense"`
	Note          string  `json:"note"`
}

type SavingsPotential struct {
	Header
	MonthlyIncome    float64 `json:"monthlyIncome"`
	MonthlyExpense   float64 `json:"monthlyExpense"`
	CurrentSavings   float64 `json:"currentSavings"`
	SavingsRate      float64 `json:"savingsRate"`
	PotentialSavings float64 `json:"potentialSavings"`
	SavingsGap       float64 `json:"savingsGap"`
	Recommendation   string  `json:"recommendation,omitempty"`
}

type DaySpend struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

type SpendingPatterns struct {
	Header
	TimeRange            string     `json:"timeRange"`
	TopDays              []DaySpend `json:"topDays"`
	AverageDailySpending float64    `json:"averageDailySpending"`
	TotalDays            int        `json:"totalDays"`
}

const (
	TrendImproving  = "IMPROVING"
	TrendWorsening  = "WORSENING"
	TrendStable     = "STABLE"
	TrendIncreasing = "INCREASING"
	TrendDecreasing = "DECREASING"

	RecommendationLow      = "LOW"
	RecommendationModerate = "MODERATE"
	RecommendationGood     = "GOOD"
)
