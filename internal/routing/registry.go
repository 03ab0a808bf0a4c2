package routing

import "github.com/antoniostano/finchat/internal/llm"

// Analysis, range, investment and risk vocabularies advertised to the model.
var (
	AnalysisTypes   = []string{"COMPARE_MONTHS", "TREND_ANALYSIS", "CATEGORY_BREAKDOWN", "GENERIC"}
	TimeRanges      = []string{"THIS_MONTH", "LAST_3_MONTHS", "LAST_6_MONTHS", "LAST_12_MONTHS"}
	InvestmentTypes = []string{"SAVINGS_ACCOUNT", "STOCKS", "BONDS", "MIXED"}
	RiskTolerances  = []string{"LOW", "MEDIUM", "HIGH"}
)

// Registry is an immutable set of capability declarations. Build it once and
// share it; accessors return copies.
type Registry struct {
	decls []llm.FunctionDeclaration
}

func NewRegistry(decls ...llm.FunctionDeclaration) Registry {
	out := make([]llm.FunctionDeclaration, len(decls))
	copy(out, decls)
	return Registry{decls: out}
}

// Declarations returns the declarations in registration order.
func (r Registry) Declarations() []llm.FunctionDeclaration {
	out := make([]llm.FunctionDeclaration, len(r.decls))
	copy(out, r.decls)
	return out
}

func (r Registry) Has(name string) bool {
	for _, d := range r.decls {
		if d.Name == name {
			return true
		}
	}
	return false
}

func (r Registry) Len() int { return len(r.decls) }

// DefaultRegistry declares the four assistant capabilities. No parameter is required.
func DefaultRegistry() Registry {
	str := func(desc string, enum ...string) llm.Schema {
		return llm.Schema{Type: llm.TypeString, Description: desc, Enum: enum}
	}
	object := func(props map[string]llm.Schema) llm.Schema {
		return llm.Schema{Type: llm.TypeObject, Properties: props}
	}

	return NewRegistry(
		llm.FunctionDeclaration{
			Name:        string(CapabilityGeneralChat),
			Description: "Answer general personal-finance questions, give tips, or chat casually.",
			Parameters: object(map[string]llm.Schema{
				"message": str("The user's question or message"),
			}),
		},
		llm.FunctionDeclaration{
			Name:        string(CapabilityAnalyzeSpending),
			Description: "Analyse spending with concrete data: month comparisons, trends, category reports, statistics.",
			Parameters: object(map[string]llm.Schema{
				"analysisType": str("Type of analysis to perform", AnalysisTypes...),
				"timeRange":    str("Time range for the analysis", TimeRanges...),
				"category":     str("Optional category filter"),
			}),
		},
		llm.FunctionDeclaration{
			Name:        string(CapabilityRecommendLoan),
			Description: "Advise on borrowing based on the user's financial situation.",
			Parameters: object(map[string]llm.Schema{
				"loanAmount": {Type: llm.TypeNumber, Description: "Desired loan amount (optional)"},
				"purpose":    str("Loan purpose (optional)"),
			}),
		},
		llm.FunctionDeclaration{
			Name:        string(CapabilityRecommendInvestment),
			Description: "Advise on investing and saving based on balance and savings rate.",
			Parameters: object(map[string]llm.Schema{
				"investmentType": str("Type of investment (optional)", InvestmentTypes...),
				"riskTolerance":  str("Risk tolerance level (optional)", RiskTolerances...),
			}),
		},
	)
}
