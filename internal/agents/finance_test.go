package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestAssessLoanEligibleExample(t *testing.T) {
	got := DefaultPolicy().AssessLoan(ptr(24_000_000), 10_000_000, 5_000_000)

	assert.True(t, got.Eligible)
	assert.Equal(t, 2_000_000.0, got.MonthlyPayment)
	assert.Equal(t, 0.2, got.DebtToIncomeRatio)
	assert.Equal(t, 42_000_000.0, got.RecommendedMaxAmount)
}

func TestAssessLoanNotEligible(t *testing.T) {
	// 60M / 12 = 5M payment; 5M free income is not above 7.5M.
	got := DefaultPolicy().AssessLoan(ptr(60_000_000), 10_000_000, 5_000_000)
	assert.False(t, got.Eligible)
	assert.NotEmpty(t, got.Recommendation)
}

func TestAssessLoanBufferOverride(t *testing.T) {
	p := DefaultPolicy()
	p.PaymentBuffer = 3
	// 3 * 2M = 6M > 5M free income.
	assert.False(t, p.AssessLoan(ptr(24_000_000), 10_000_000, 5_000_000).Eligible)
}

func TestAssessLoanWithoutIncome(t *testing.T) {
	got := DefaultPolicy().AssessLoan(ptr(1_000_000), 0, 0)
	assert.False(t, got.Eligible)
	assert.Zero(t, got.DebtToIncomeRatio)
}

func TestAssessLoanWithoutAmount(t *testing.T) {
	got := DefaultPolicy().AssessLoan(nil, 10_000_000, 4_000_000)
	assert.True(t, got.Eligible)
	assert.Zero(t, got.MonthlyPayment)
}

func TestInvestableAmount(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 0.0, p.InvestableAmount(0, 1_000_000))
	assert.Equal(t, 0.0, p.InvestableAmount(-5, 0))
	assert.Equal(t, 0.0, p.InvestableAmount(2_000_000, 1_000_000))
	// (100M - 3*10M) * 0.6
	assert.Equal(t, 42_000_000.0, p.InvestableAmount(100_000_000, 10_000_000))
}

func TestInferRisk(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, RiskLow, p.InferRisk(9_000_000, 0.5))
	assert.Equal(t, RiskLow, p.InferRisk(20_000_000, 0.05))
	assert.Equal(t, RiskMedium, p.InferRisk(20_000_000, 0.3))
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		risk  string
		types []string
		pcts  []float64
	}{
		{"LOW", []string{"SAVINGS", "BOND"}, []float64{60, 40}},
		{"conservative", []string{"SAVINGS", "BOND"}, []float64{60, 40}},
		{"MEDIUM", []string{"SAVINGS", "MUTUAL_FUND", "STOCK"}, []float64{30, 50, 20}},
		{"HIGH", []string{"SAVINGS", "MUTUAL_FUND", "STOCK"}, []float64{10, 30, 60}},
		{"unknown", []string{"SAVINGS", "MUTUAL_FUND", "STOCK"}, []float64{30, 50, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.risk, func(t *testing.T) {
			got := Allocate(10_000_000, tt.risk)
			require.Len(t, got.Items, len(tt.types))
			var sum float64
			for i, item := range got.Items {
				assert.Equal(t, tt.types[i], item.Type)
				assert.Equal(t, tt.pcts[i], item.Percentage)
				sum += item.Amount
			}
			assert.Equal(t, 10_000_000.0, sum)
		})
	}
}

func TestAllocateNothing(t *testing.T) {
	got := Allocate(0, RiskHigh)
	assert.Empty(t, got.Items)
	assert.Zero(t, got.TotalAmount)
}
