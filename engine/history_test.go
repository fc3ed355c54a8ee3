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

func history(t *testing.T, svc *engine.Service, id ledger.ContractID, f engine.HistoryFilter) engine.HistoryPage {
	t.Helper()
	page, err := svc.History(context.Background(), id, f)
	require.NoError(t, err)
	return page
}

func TestHistory_DescendingByBusinessDate(t *testing.T) {
	// GIVEN: the standard contract plus two payments on distinct dates
	// THEN:  entries come newest business date first, regardless of the
	//        order they were recorded in

	svc := newService(t)
	id := originate(t, svc)
	pay(t, svc, id, ledger.NewDate(2025, time.February, 10), "2000", "PAY-LATE")
	pay(t, svc, id, ledger.NewDate(2025, time.January, 15), "50000", "PAY-EARLY")

	page := history(t, svc, id, engine.HistoryFilter{})

	// fee + installment + funding + two payments
	require.Equal(t, 5, page.TotalEntries)
	assert.Equal(t, "payment PAY-LATE", page.Entries[0].Label)
	assert.Equal(t, "payment PAY-EARLY", page.Entries[1].Label)
	for i := 1; i < len(page.Entries); i++ {
		assert.False(t, page.Entries[i].BusinessDate.After(page.Entries[i-1].BusinessDate),
			"entry %d out of order", i)
	}
}

func TestHistory_TieBreaksByRecordingOrder(t *testing.T) {
	// Same business date: the later-recorded fact sorts first.

	svc := newService(t)
	id := originate(t, svc)
	date := ledger.NewDate(2025, time.January, 15)
	pay(t, svc, id, date, "1000", "PAY-1")
	pay(t, svc, id, date, "2000", "PAY-2")

	page := history(t, svc, id, engine.HistoryFilter{Kinds: []ledger.FactKind{ledger.KindPayment}})
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "payment PAY-2", page.Entries[0].Label)
	assert.Equal(t, "payment PAY-1", page.Entries[1].Label)
}

func TestHistory_IncludesRetractedWithReason(t *testing.T) {
	svc := newService(t)
	id := originate(t, svc)
	mistake := pay(t, svc, id, ledger.NewDate(2025, time.January, 15), "9999", "PAY-BAD")

	err := svc.Retract(context.Background(), mistake, ledger.ReasonDuplicateRemoval,
		engine.Meta{Author: "auditor@test", Note: "double keyed"})
	require.NoError(t, err)

	page := history(t, svc, id, engine.HistoryFilter{Kinds: []ledger.FactKind{ledger.KindPayment}})
	require.Len(t, page.Entries, 1)

	entry := page.Entries[0]
	assert.True(t, entry.Retracted)
	assert.Equal(t, "auditor@test", entry.RetractedBy)
	assert.Equal(t, ledger.ReasonDuplicateRemoval, entry.RetractionReason)
	assert.Equal(t, "double keyed", entry.RetractionNote)
	assert.False(t, entry.RetractedAt.IsZero())

	// And the retracted payment no longer funds live state.
	state, err := svc.State(context.Background(), id, ledger.NewDate(2025, time.March, 1))
	require.NoError(t, err)
	assert.True(t, state.EffectiveFunds.IsZero())
}

func TestHistory_KindAndDateFilters(t *testing.T) {
	svc := newService(t)
	id := originate(t, svc)
	pay(t, svc, id, ledger.NewDate(2025, time.January, 15), "1000", "PAY-1")
	pay(t, svc, id, ledger.NewDate(2025, time.February, 15), "2000", "PAY-2")

	onlyPayments := history(t, svc, id, engine.HistoryFilter{Kinds: []ledger.FactKind{ledger.KindPayment}})
	require.Len(t, onlyPayments.Entries, 2)
	for _, e := range onlyPayments.Entries {
		assert.Equal(t, ledger.KindPayment, e.Kind)
	}

	from := ledger.NewDate(2025, time.February, 1)
	to := ledger.NewDate(2025, time.February, 28)
	february := history(t, svc, id, engine.HistoryFilter{From: &from, To: &to})
	require.Len(t, february.Entries, 1)
	assert.Equal(t, "payment PAY-2", february.Entries[0].Label)
}

func TestHistory_PageClamping(t *testing.T) {
	svc := newService(t)
	id := originate(t, svc)
	for i := 0; i < 5; i++ {
		pay(t, svc, id, ledger.NewDate(2025, time.January, 10+i), "100", "PAY")
	}

	filter := engine.HistoryFilter{Kinds: []ledger.FactKind{ledger.KindPayment}, PageSize: 2}

	filter.Page = 1
	first := history(t, svc, id, filter)
	assert.Equal(t, 5, first.TotalEntries)
	assert.Equal(t, 3, first.TotalPages)
	assert.Len(t, first.Entries, 2)

	filter.Page = 3
	last := history(t, svc, id, filter)
	assert.Len(t, last.Entries, 1)

	// Out-of-range pages clamp instead of erroring.
	filter.Page = 99
	clampedHigh := history(t, svc, id, filter)
	assert.Equal(t, 3, clampedHigh.Page)
	assert.Len(t, clampedHigh.Entries, 1)

	filter.Page = -4
	clampedLow := history(t, svc, id, filter)
	assert.Equal(t, 1, clampedLow.Page)
}

func TestHistory_CrossContractPaymentLabel(t *testing.T) {
	// A payment transferred in from another contract names its source.

	svc := newService(t)
	ctx := context.Background()
	source, err := svc.CreateContract(ctx, ledger.Contract{Number: "C-0001", Customer: "Hshaim Motors"})
	require.NoError(t, err)
	id := originate(t, svc)

	_, err = svc.RecordPayment(ctx, id, ledger.NewDate(2025, time.January, 20), ledger.Payment{
		Amount:         dec("500"),
		Reference:      "XFER-1",
		SourceContract: source.ID,
	}, author)
	require.NoError(t, err)

	page := history(t, svc, id, engine.HistoryFilter{Kinds: []ledger.FactKind{ledger.KindPayment}})
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "payment XFER-1 from C-0001 / Hshaim Motors", page.Entries[0].Label)
}

func TestHistory_UnknownContract(t *testing.T) {
	svc := newService(t)
	_, err := svc.History(context.Background(), "no-such-contract", engine.HistoryFilter{})
	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
}
