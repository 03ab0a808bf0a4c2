package agents

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

type LoanProvider struct {
	Name         string   `yaml:"name" json:"name"`
	Type         string   `yaml:"type" json:"type"`
	MinAmount    float64  `yaml:"minAmount" json:"minAmount"`
	MaxAmount    float64  `yaml:"maxAmount" json:"maxAmount"`
	InterestRate float64  `yaml:"interestRate" json:"interestRate"`
	TermMonths   int      `yaml:"termMonths" json:"termMonths"`
	Eligibility  string   `yaml:"eligibility" json:"eligibility"`
	Pros         []string `yaml:"pros" json:"pros"`
	Cons         []string `yaml:"cons" json:"cons"`
}

type InvestmentOption struct {
	Name           string   `yaml:"name" json:"name"`
	Type           string   `yaml:"type" json:"type"`
	RiskLevel      string   `yaml:"riskLevel" json:"riskLevel"`
	MinAmount      float64  `yaml:"minAmount" json:"minAmount"`
	MaxAmount      float64  `yaml:"maxAmount" json:"maxAmount"`
	ExpectedReturn float64  `yaml:"expectedReturn" json:"expectedReturn"`
	TermMonths     int      `yaml:"termMonths" json:"termMonths"`
	Description    string   `yaml:"description" json:"description"`
	Providers      []string `yaml:"providers" json:"providers"`
	Pros           []string `yaml:"pros" json:"pros"`
	Cons           []string `yaml:"cons" json:"cons"`
}

// Catalog is the reference data the loan and investment advisors draw from.
type Catalog struct {
	LoanProviders     []LoanProvider     `yaml:"loanProviders"`
	InvestmentOptions []InvestmentOption `yaml:"investmentOptions"`
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (Catalog, error) {
	data := embeddedCatalog
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	for _, p := range c.LoanProviders {
		if p.Name == "" || p.MaxAmount < p.MinAmount {
			return Catalog{}, fmt.Errorf("invalid loan provider %q", p.Name)
		}
	}
	for _, o := range c.InvestmentOptions {
		if o.Name == "" || o.MaxAmount < o.MinAmount {
			return Catalog{}, fmt.Errorf("invalid investment option %q", o.Name)
		}
	}
	return c, nil
}

// LoansFor returns providers whose range covers amount (all when amount is
// nil), cheapest rate first.
func (c Catalog) LoansFor(amount *float64, limit int) []LoanProvider {
	out := make([]LoanProvider, 0, len(c.LoanProviders))
	for _, p := range c.LoanProviders {
		if amount != nil && (*amount < p.MinAmount || *amount > p.MaxAmount) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].InterestRate < out[j].InterestRate })
	return truncate(out, limit)
}

// InvestmentsFor filters by risk tier, type and amount, highest expected
// return first. LOW admits LOW options, MEDIUM admits LOW and MEDIUM, anything
// else admits every tier.
func (c Catalog) InvestmentsFor(amount float64, risk, investmentType string, limit int) []InvestmentOption {
	risk = normalizeRisk(risk)
	investmentType = strings.ToUpper(strings.TrimSpace(investmentType))

	out := make([]InvestmentOption, 0, len(c.InvestmentOptions))
	for _, o := range c.InvestmentOptions {
		switch risk {
		case RiskLow:
			if o.RiskLevel != RiskLow {
				continue
			}
		case RiskMedium:
			if o.RiskLevel != RiskLow && o.RiskLevel != RiskMedium {
				continue
			}
		}
		if investmentType != "" && !matchesInvestmentType(o.Type, investmentType) {
			continue
		}
		if amount < o.MinAmount || amount > o.MaxAmount {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpectedReturn > out[j].ExpectedReturn })
	return truncate(out, limit)
}

// matchesInvestmentType accepts the router vocabulary (SAVINGS_ACCOUNT,
// STOCKS, BONDS, MIXED) as well as catalog type names.
func matchesInvestmentType(optionType, requested string) bool {
	switch requested {
	case "MIXED":
		return true
	case "SAVINGS_ACCOUNT":
		return optionType == "SAVINGS"
	case "STOCKS":
		return optionType == "STOCK" || optionType == "ETF"
	case "BONDS":
		return optionType == "BOND"
	default:
		return optionType == requested
	}
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
