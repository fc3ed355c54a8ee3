package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/murabaha-engine/engine"
	"github.com/warp/murabaha-engine/ledger"
)

func quote(t *testing.T, svc *engine.Service, id ledger.ContractID, in engine.SettlementInput) engine.SettlementResult {
	t.Helper()
	result, err := svc.Settlement(context.Background(), id, in)
	require.NoError(t, err)
	return result
}

func TestSettle_OutstandingPrincipalOnly(t *testing.T) {
	// GIVEN: the standard contract paid down to 3,000 of principal, with
	//        fee and profit fully covered and the due date in the past
	// WHEN:  quoting settlement after maturity
	// THEN:  the quote is exactly the remaining principal

	svc := newService(t)
	id := originate(t, svc)
	pay(t, svc, id, ledger.NewDate(2025, time.January, 15), "112000", "PAY-1")

	result := quote(t, svc, id, engine.SettlementInput{Date: ledger.NewDate(2025, time.March, 1)})

	assert.True(t, result.OutstandingPrincipal.Equal(dec("3000")), "principal, got %s", result.OutstandingPrincipal)
	assert.True(t, result.AccruedUnpaidProfit.IsZero(), "profit fully paid, got %s", result.AccruedUnpaidProfit)
	assert.True(t, result.Penalty.IsZero())
	assert.True(t, result.FeesOutstanding.IsZero())
	assert.True(t, result.CreditBalance.IsZero())
	assert.False(t, result.Overridden)
	assert.True(t, result.Total.Equal(dec("3000")), "total, got %s", result.Total)
}

func TestSettle_ProRataAccrualMidPeriod(t *testing.T) {
	// GIVEN: the funded but unpaid standard contract; funding 2025-01-01,
	//        installment due 2025-02-01, so a 31-day accrual period
	// WHEN:  quoting 15 days into the period
	// THEN:  profit accrues pro-rata: 10,000 * 15/31 = 4,838.71

	svc := newService(t)
	id := originate(t, svc)

	result := quote(t, svc, id, engine.SettlementInput{Date: ledger.NewDate(2025, time.January, 16)})

	assert.True(t, result.AccruedUnpaidProfit.Equal(dec("4838.71")), "accrued, got %s", result.AccruedUnpaidProfit)
	assert.True(t, result.OutstandingPrincipal.Equal(dec("100000")))
	assert.True(t, result.FeesOutstanding.Equal(dec("5000")))
	assert.True(t, result.Total.Equal(dec("109838.71")), "total, got %s", result.Total)
}

func TestSettle_ProfitOverrideReplacesAccrual(t *testing.T) {
	svc := newService(t)
	id := originate(t, svc)
	pay(t, svc, id, ledger.NewDate(2025, time.January, 15), "112000", "PAY-1")

	negotiated := dec("500")
	result := quote(t, svc, id, engine.SettlementInput{
		Date:           ledger.NewDate(2025, time.March, 1),
		ProfitOverride: &negotiated,
	})

	assert.True(t, result.Overridden)
	assert.True(t, result.AccruedUnpaidProfit.Equal(dec("500")))
	assert.True(t, result.Total.Equal(dec("3500")), "total, got %s", result.Total)
}

func TestSettle_PenaltyUsesPeriodDailyRate(t *testing.T) {
	// The only accrual period is 31 days of 10,000 profit; 3 penalty days
	// add 10,000 * 3/31 = 967.74 on top of the base quote.

	svc := newService(t)
	id := originate(t, svc)
	pay(t, svc, id, ledger.NewDate(2025, time.January, 15), "112000", "PAY-1")

	result := quote(t, svc, id, engine.SettlementInput{
		Date:        ledger.NewDate(2025, time.March, 1),
		PenaltyDays: 3,
	})

	assert.True(t, result.Penalty.Equal(dec("967.74")), "penalty, got %s", result.Penalty)
	assert.True(t, result.Total.Equal(dec("3967.74")), "total, got %s", result.Total)
}

func TestSettle_CreditBalanceReducesQuote(t *testing.T) {
	// GIVEN: an overpaid contract holding a 1,000 credit balance
	// THEN:  the quote nets the credit off

	svc := newService(t)
	id := originate(t, svc)
	pay(t, svc, id, ledger.NewDate(2025, time.February, 1), "116000", "PAY-1")

	result := quote(t, svc, id, engine.SettlementInput{Date: ledger.NewDate(2025, time.March, 1)})

	assert.True(t, result.CreditBalance.Equal(dec("1000")))
	assert.True(t, result.OutstandingPrincipal.IsZero())
	assert.True(t, result.Total.Equal(dec("-1000")), "total, got %s", result.Total)
}

func TestSettle_FutureInstallmentsAccrueNothing(t *testing.T) {
	// A quote dated before the accrual period opens carries no profit.

	svc := newService(t)
	ctx := context.Background()
	c, err := svc.CreateContract(ctx, ledger.Contract{Number: "C-3003", Customer: "Dar Al Seef"})
	require.NoError(t, err)

	origination := ledger.NewDate(2025, time.June, 1)
	_, err = svc.RecordDisbursement(ctx, c.ID, origination, ledger.Disbursement{
		Type: ledger.DisbursementFunding, Amount: dec("50000"), Reference: "FUND-1",
	}, author)
	require.NoError(t, err)
	_, err = svc.RecordInstallments(ctx, c.ID, origination, []ledger.Installment{{
		Seq: 1, DueDate: ledger.NewDate(2025, time.July, 1),
		PrincipalDue: dec("50000"), ProfitDue: dec("600"), OpeningPrincipal: dec("50000"),
	}}, author)
	require.NoError(t, err)

	result := quote(t, svc, c.ID, engine.SettlementInput{Date: ledger.NewDate(2025, time.May, 1)})
	assert.True(t, result.AccruedUnpaidProfit.IsZero(), "got %s", result.AccruedUnpaidProfit)
	assert.True(t, result.Total.Equal(dec("50000")), "total, got %s", result.Total)
}

func TestSettle_NoInstallments(t *testing.T) {
	state := engine.ContractState{}
	result := engine.Settle(state, engine.SettlementInput{
		Date:        ledger.NewDate(2025, time.March, 1),
		PenaltyDays: 5,
	})
	assert.True(t, result.Total.IsZero())
	assert.True(t, result.Penalty.IsZero())
}
