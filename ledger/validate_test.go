package ledger_test

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

func validFact(body ledger.Body) ledger.Fact {
	return ledger.Fact{
		ID:           "f-1",
		ContractID:   "c-1",
		BusinessDate: ledger.NewDate(2025, time.January, 1),
		Body:         body,
	}
}

func validBatch(facts ...ledger.Fact) ledger.WriteBatch {
	return ledger.WriteBatch{ID: "b-1", Author: "ops@test", Creates: facts}
}

func assertValidationKind(t *testing.T, err error, kind string) {
	t.Helper()
	require.Error(t, err)
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, kind, verr.Kind)
}

// =============================================================================
// BATCH SHAPE
// =============================================================================

func TestValidateBatch_EmptyBatch(t *testing.T) {
	err := ledger.ValidateBatch(ledger.WriteBatch{ID: "b-1", Author: "ops@test"}, nil)
	assert.ErrorIs(t, err, ledger.ErrEmptyBatch)
}

func TestValidateBatch_AuthorRequired(t *testing.T) {
	b := validBatch(validFact(ledger.Payment{Amount: dec("100"), Reference: "P1"}))
	b.Author = ""
	assertValidationKind(t, ledger.ValidateBatch(b, nil), ledger.ValidationMissingField)
}

func TestValidateBatch_RetractionNeedsCorrection(t *testing.T) {
	b := ledger.WriteBatch{ID: "b-1", Author: "ops@test", Retracts: []ledger.FactID{"f-9"}}

	// GIVEN: a retraction without its correction record
	err := ledger.ValidateBatch(b, nil)
	assert.ErrorIs(t, err, ledger.ErrCorrectionRequired)

	// WHEN: the correction carries an unknown reason
	b.Correction = &ledger.Correction{Reason: "because", Corrected: "f-9"}
	assertValidationKind(t, ledger.ValidateBatch(b, nil), ledger.ValidationBadEnum)

	// WHEN: the correction does not name what it corrects
	b.Correction = &ledger.Correction{Reason: ledger.ReasonDuplicateRemoval}
	assertValidationKind(t, ledger.ValidateBatch(b, nil), ledger.ValidationMissingField)

	// THEN: a complete correction passes
	b.Correction = &ledger.Correction{Reason: ledger.ReasonDuplicateRemoval, Corrected: "f-9"}
	assert.NoError(t, ledger.ValidateBatch(b, nil))
}

func TestValidateBatch_InstallmentSeqUniqueness(t *testing.T) {
	inst := func(seq int) ledger.Fact {
		return validFact(ledger.Installment{
			Seq:          seq,
			DueDate:      ledger.NewDate(2025, time.February, 1),
			PrincipalDue: dec("100"),
			ProfitDue:    dec("10"),
		})
	}

	// Duplicate inside one batch.
	err := ledger.ValidateBatch(validBatch(inst(1), inst(1)), nil)
	assertValidationKind(t, err, ledger.ValidationDuplicateSeq)

	// Collision with a seq already live on the contract.
	err = ledger.ValidateBatch(validBatch(inst(3)), map[int]bool{3: true})
	assertValidationKind(t, err, ledger.ValidationDuplicateSeq)

	assert.NoError(t, ledger.ValidateBatch(validBatch(inst(1), inst(2)), map[int]bool{3: true}))
}

func TestValidateBatch_NegativeAdjustment(t *testing.T) {
	b := ledger.WriteBatch{
		ID: "b-1", Author: "ops@test",
		Adjustments: []ledger.ProfitAdjustment{{FactID: "f-1", NewProfitDue: dec("-5")}},
	}
	assertValidationKind(t, ledger.ValidateBatch(b, nil), ledger.ValidationNegativeAmount)
}

// =============================================================================
// PER-KIND FACT RULES
// =============================================================================

func TestValidateFact_Envelope(t *testing.T) {
	f := validFact(ledger.Payment{Amount: dec("100"), Reference: "P1"})

	missing := f
	missing.ContractID = ""
	assertValidationKind(t, ledger.ValidateFact(missing), ledger.ValidationMissingField)

	undated := f
	undated.BusinessDate = ledger.Date{}
	assertValidationKind(t, ledger.ValidateFact(undated), ledger.ValidationMalformedDate)

	empty := f
	empty.Body = nil
	assertValidationKind(t, ledger.ValidateFact(empty), ledger.ValidationMissingField)
}

func TestValidateFact_Fee(t *testing.T) {
	due := ledger.NewDate(2025, time.February, 1)
	offset := 30
	negative := -1

	cases := []struct {
		name string
		fee  ledger.Fee
		kind string // empty means valid
	}{
		{"absolute due date", ledger.Fee{Type: ledger.FeeProcessing, Amount: dec("100"), DueDate: due}, ""},
		{"relative due date", ledger.Fee{Type: ledger.FeeProcessing, Amount: dec("100"), DaysAfterFunding: &offset}, ""},
		{"zero amount", ledger.Fee{Type: ledger.FeeProcessing, Amount: dec("0"), DueDate: due}, ledger.ValidationNonPositiveAmount},
		{"neither date form", ledger.Fee{Type: ledger.FeeProcessing, Amount: dec("100")}, ledger.ValidationMissingField},
		{"both date forms", ledger.Fee{Type: ledger.FeeProcessing, Amount: dec("100"), DueDate: due, DaysAfterFunding: &offset}, ledger.ValidationMissingField},
		{"negative offset", ledger.Fee{Type: ledger.FeeProcessing, Amount: dec("100"), DaysAfterFunding: &negative}, ledger.ValidationMalformedDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ledger.ValidateFact(validFact(tc.fee))
			if tc.kind == "" {
				assert.NoError(t, err)
			} else {
				assertValidationKind(t, err, tc.kind)
			}
		})
	}
}

func TestValidateFact_Installment(t *testing.T) {
	base := ledger.Installment{
		Seq: 1, DueDate: ledger.NewDate(2025, time.February, 1),
		PrincipalDue: dec("100"), ProfitDue: dec("10"),
	}
	assert.NoError(t, ledger.ValidateFact(validFact(base)))

	noSeq := base
	noSeq.Seq = 0
	assertValidationKind(t, ledger.ValidateFact(validFact(noSeq)), ledger.ValidationMissingField)

	noDue := base
	noDue.DueDate = ledger.Date{}
	assertValidationKind(t, ledger.ValidateFact(validFact(noDue)), ledger.ValidationMalformedDate)

	badPrincipal := base
	badPrincipal.PrincipalDue = dec("-1")
	assertValidationKind(t, ledger.ValidateFact(validFact(badPrincipal)), ledger.ValidationNegativeAmount)

	// Zero profit is a legitimate profit-free installment.
	zeroProfit := base
	zeroProfit.ProfitDue = dec("0")
	assert.NoError(t, ledger.ValidateFact(validFact(zeroProfit)))
}

func TestValidateFact_Payment(t *testing.T) {
	assertValidationKind(t,
		ledger.ValidateFact(validFact(ledger.Payment{Amount: dec("-5"), Reference: "P1"})),
		ledger.ValidationNonPositiveAmount)
	assertValidationKind(t,
		ledger.ValidateFact(validFact(ledger.Payment{Amount: dec("5")})),
		ledger.ValidationMissingField)
}

func TestValidateFact_EnumMembers(t *testing.T) {
	assertValidationKind(t,
		ledger.ValidateFact(validFact(ledger.Disbursement{Type: "loan", Amount: dec("5")})),
		ledger.ValidationBadEnum)
	assertValidationKind(t,
		ledger.ValidateFact(validFact(ledger.Deposit{Type: "escrow", Amount: dec("5")})),
		ledger.ValidationBadEnum)
	assertValidationKind(t,
		ledger.ValidateFact(validFact(ledger.PrincipalAllocation{Type: "bonus", Amount: dec("5")})),
		ledger.ValidationBadEnum)

	assert.NoError(t, ledger.ValidateFact(validFact(ledger.Deposit{Type: ledger.DepositTransfer, Amount: dec("5")})))
	assert.NoError(t, ledger.ValidateFact(validFact(ledger.WriteOff{Reason: "regulatory"})))
}
