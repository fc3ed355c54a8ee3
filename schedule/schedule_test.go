package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/murabaha-engine/ledger"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGenerate_SumsConserveTerms(t *testing.T) {
	// GIVEN: 100,000 at 12% flat over 12 months
	// THEN:  installments sum exactly to principal and total profit

	terms := Terms{
		Principal:        dec("100000"),
		AnnualProfitRate: dec("12"),
		TermMonths:       12,
		Start:            ledger.NewDate(2025, time.January, 1),
	}
	require.True(t, terms.TotalProfit().Equal(dec("12000")))

	installments, err := Generate(terms)
	require.NoError(t, err)
	require.Len(t, installments, 12)

	principal := decimal.Zero
	profit := decimal.Zero
	for _, inst := range installments {
		principal = principal.Add(inst.PrincipalDue)
		profit = profit.Add(inst.ProfitDue)
	}
	assert.True(t, principal.Equal(dec("100000")), "principal sum, got %s", principal)
	assert.True(t, profit.Equal(dec("12000")), "profit sum, got %s", profit)
}

func TestGenerate_FinalInstallmentAbsorbsRemainder(t *testing.T) {
	// 10,000 over 3 months does not divide evenly: 3,333.33 twice, then
	// 3,333.34 on the last installment.

	installments, err := Generate(Terms{
		Principal:        dec("10000"),
		AnnualProfitRate: dec("0"),
		TermMonths:       3,
		Start:            ledger.NewDate(2025, time.January, 1),
	})
	require.NoError(t, err)
	require.Len(t, installments, 3)

	assert.True(t, installments[0].PrincipalDue.Equal(dec("3333.33")))
	assert.True(t, installments[1].PrincipalDue.Equal(dec("3333.33")))
	assert.True(t, installments[2].PrincipalDue.Equal(dec("3333.34")), "got %s", installments[2].PrincipalDue)
}

func TestGenerate_DueDatesAndOpeningPrincipal(t *testing.T) {
	installments, err := Generate(Terms{
		Principal:        dec("6000"),
		AnnualProfitRate: dec("10"),
		TermMonths:       3,
		Start:            ledger.NewDate(2025, time.January, 5),
	})
	require.NoError(t, err)
	require.Len(t, installments, 3)

	assert.Equal(t, 1, installments[0].Seq)
	assert.Equal(t, ledger.NewDate(2025, time.February, 5), installments[0].DueDate)
	assert.Equal(t, ledger.NewDate(2025, time.April, 5), installments[2].DueDate)

	assert.True(t, installments[0].OpeningPrincipal.Equal(dec("6000")))
	assert.True(t, installments[1].OpeningPrincipal.Equal(dec("4000")))
	assert.True(t, installments[2].OpeningPrincipal.Equal(dec("2000")))
}

func TestGenerate_RejectsBadTerms(t *testing.T) {
	good := Terms{
		Principal:        dec("1000"),
		AnnualProfitRate: dec("5"),
		TermMonths:       6,
		Start:            ledger.NewDate(2025, time.January, 1),
	}

	cases := []struct {
		name   string
		mutate func(*Terms)
	}{
		{"zero term", func(t *Terms) { t.TermMonths = 0 }},
		{"zero principal", func(t *Terms) { t.Principal = dec("0") }},
		{"negative rate", func(t *Terms) { t.AnnualProfitRate = dec("-1") }},
		{"missing start", func(t *Terms) { t.Start = ledger.Date{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			terms := good
			tc.mutate(&terms)
			_, err := Generate(terms)
			require.Error(t, err)
			assert.True(t, ledger.IsValidation(err))
		})
	}
}
