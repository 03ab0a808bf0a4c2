package agents

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Policy holds the tunable constants of the loan and investment advisors.
type Policy struct {
	// PaymentBuffer is how many times the monthly payment the free monthly
	// income must exceed for a loan to be affordable.
	PaymentBuffer float64
	// LoanTermMonths spreads the requested amount into a monthly payment.
	LoanTermMonths int
	// MaxLoanShare is the share of annual free income offered as a ceiling.
	MaxLoanShare float64
	// EmergencyFundMonths of expenses are held back before investing.
	EmergencyFundMonths int
	// InvestShare is the share of the remaining balance proposed for investing.
	InvestShare          float64
	LowIncomeThreshold   float64
	LowSavingsRate       float64
	TopLoanProviders     int
	TopInvestmentOptions int
}

func DefaultPolicy() Policy {
	return Policy{
		PaymentBuffer:        1.5,
		LoanTermMonths:       12,
		MaxLoanShare:         0.7,
		EmergencyFundMonths:  3,
		InvestShare:          0.6,
		LowIncomeThreshold:   10_000_000,
		LowSavingsRate:       0.1,
		TopLoanProviders:     3,
		TopInvestmentOptions: 5,
	}
}

// LoanAssessment is the affordability verdict for a requested loan.
type LoanAssessment struct {
	Eligible             bool    `json:"eligible"`
	Reason               string  `json:"reason"`
	MonthlyPayment       float64 `json:"monthlyPayment"`
	DebtToIncomeRatio    float64 `json:"debtToIncomeRatio"`
	RecommendedMaxAmount float64 `json:"recommendedMaxAmount"`
	Recommendation       string  `json:"recommendation"`
}

// AssessLoan checks a loan against average income and expense. A nil amount
// is assessed as a zero payment.
func (p Policy) AssessLoan(amount *float64, income, expense float64) LoanAssessment {
	if income <= 0 {
		return LoanAssessment{
			Reason:         "No income information available",
			Recommendation: "Sync your income data to get an accurate loan assessment",
		}
	}

	inc := decimal.NewFromFloat(income)
	available := inc.Sub(decimal.NewFromFloat(expense))
	payment := decimal.Zero
	if amount != nil {
		payment = decimal.NewFromFloat(*amount).Div(decimal.NewFromInt(int64(p.LoanTermMonths)))
	}
	eligible := available.GreaterThan(payment.Mul(decimal.NewFromFloat(p.PaymentBuffer)))

	res := LoanAssessment{
		Eligible:             eligible,
		MonthlyPayment:       payment.Round(2).InexactFloat64(),
		DebtToIncomeRatio:    payment.Div(inc).Round(4).InexactFloat64(),
		RecommendedMaxAmount: available.Mul(decimal.NewFromInt(12)).Mul(decimal.NewFromFloat(p.MaxLoanShare)).Round(0).InexactFloat64(),
	}
	if eligible {
		res.Reason = "Your income covers the monthly repayment"
		res.Recommendation = "You can borrow, but keep the amount in line with your repayment capacity"
	} else {
		res.Reason = "Your income does not safely cover the monthly repayment"
		res.Recommendation = "Increase income or cut expenses before borrowing, or borrow a smaller amount"
	}
	return res
}

// InvestableAmount keeps an emergency fund aside and proposes a share of the rest.
func (p Policy) InvestableAmount(balance, expense float64) float64 {
	if balance <= 0 {
		return 0
	}
	reserve := decimal.NewFromFloat(expense).Mul(decimal.NewFromInt(int64(p.EmergencyFundMonths)))
	free := decimal.Max(decimal.Zero, decimal.NewFromFloat(balance).Sub(reserve))
	return free.Mul(decimal.NewFromFloat(p.InvestShare)).Round(0).InexactFloat64()
}

// InferRisk picks a tolerance when the user named none.
func (p Policy) InferRisk(income, savingsRate float64) string {
	if income < p.LowIncomeThreshold || savingsRate < p.LowSavingsRate {
		return RiskLow
	}
	return RiskMedium
}

type AllocationItem struct {
	Type       string  `json:"type"`
	Percentage float64 `json:"percentage"`
	Amount     float64 `json:"amount"`
}

type Allocation struct {
	TotalAmount   float64          `json:"totalAmount"`
	RiskTolerance string           `json:"riskTolerance,omitempty"`
	Items         []AllocationItem `json:"allocations"`
}

var allocationTables = map[string][]AllocationItem{
	RiskLow:    {{Type: "SAVINGS", Percentage: 60}, {Type: "BOND", Percentage: 40}},
	RiskMedium: {{Type: "SAVINGS", Percentage: 30}, {Type: "MUTUAL_FUND", Percentage: 50}, {Type: "STOCK", Percentage: 20}},
	RiskHigh:   {{Type: "SAVINGS", Percentage: 10}, {Type: "MUTUAL_FUND", Percentage: 30}, {Type: "STOCK", Percentage: 60}},
}

// Allocate splits total by the table of the risk tier. Unknown tiers use MEDIUM.
func Allocate(total float64, risk string) Allocation {
	if total <= 0 {
		return Allocation{Items: []AllocationItem{}}
	}
	risk = normalizeRisk(risk)
	table, ok := allocationTables[risk]
	if !ok {
		risk = RiskMedium
		table = allocationTables[RiskMedium]
	}
	amount := decimal.NewFromFloat(total)
	items := make([]AllocationItem, len(table))
	for i, row := range table {
		items[i] = AllocationItem{
			Type:       row.Type,
			Percentage: row.Percentage,
			Amount:     amount.Mul(decimal.NewFromFloat(row.Percentage)).Div(decimal.NewFromInt(100)).Round(0).InexactFloat64(),
		}
	}
	return Allocation{TotalAmount: total, RiskTolerance: risk, Items: items}
}

// normalizeRisk folds the conservative/moderate/aggressive synonyms onto the tiers.
func normalizeRisk(risk string) string {
	switch r := strings.ToUpper(strings.TrimSpace(risk)); r {
	case "CONSERVATIVE":
		return RiskLow
	case "MODERATE":
		return RiskMedium
	case "AGGRESSIVE":
		return RiskHigh
	default:
		return r
	}
}
