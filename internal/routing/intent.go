package routing

import "strings"

// Capability names one of the fixed intent handlers.
type Capability string

const (
	CapabilityGeneralChat         Capability = "general_chat"
	CapabilityAnalyzeSpending     Capability = "analyze_spending"
	CapabilityRecommendLoan       Capability = "recommend_loan"
	CapabilityRecommendInvestment Capability = "recommend_investment"
)

// ParseCapability reports whether name is a known capability.
func ParseCapability(name string) (Capability, bool) {
	switch c := Capability(strings.TrimSpace(name)); c {
	case CapabilityGeneralChat, CapabilityAnalyzeSpending, CapabilityRecommendLoan, CapabilityRecommendInvestment:
		return c, true
	default:
		return "", false
	}
}

// Intent is the routed capability with its typed arguments. The variant set
// is closed; consumers switch on the concrete type.
type Intent interface {
	Capability() Capability
	isIntent()
}

type GeneralChat struct {
	Message string
}

type AnalyzeSpending struct {
	AnalysisType string
	TimeRange    string
	Category     string
}

type RecommendLoan struct {
	// LoanAmount is nil when the user did not name an amount.
	LoanAmount *float64
	Purpose    string
}

type RecommendInvestment struct {
	InvestmentType string
	RiskTolerance  string
}

func (GeneralChat) Capability() Capability         { return CapabilityGeneralChat }
func (AnalyzeSpending) Capability() Capability     { return CapabilityAnalyzeSpending }
func (RecommendLoan) Capability() Capability       { return CapabilityRecommendLoan }
func (RecommendInvestment) Capability() Capability { return CapabilityRecommendInvestment }

func (GeneralChat) isIntent()         {}
func (AnalyzeSpending) isIntent()     {}
func (RecommendLoan) isIntent()       {}
func (RecommendInvestment) isIntent() {}
