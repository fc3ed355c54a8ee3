/*
validate.go - Per-kind fact and batch validation

PURPOSE:
  Validation runs before anything touches the store, and reports a
  machine-readable kind + field so the boundary can render precise
  errors. Stores call ValidateBatch at the top of Commit so both
  implementations enforce identical rules.

RULES (from the fact model):
  - All amounts strictly positive.
  - Fees: exactly one of DueDate / DaysAfterFunding.
  - Installments: seq >= 1, unique per contract, due date required,
    principal and profit due non-negative.
  - Payments: business date and reference required.
  - Enum-typed fields must hold a known member.
  - Retraction batches carry a Correction with a valid reason.
*/
package ledger

// ValidateBatch checks a batch's shape and every fact it creates.
// existingSeqs holds the installment seqs already live on the contract,
// for uniqueness checks; nil is an empty set.
func ValidateBatch(b WriteBatch, existingSeqs map[int]bool) error {
	if b.Empty() {
		return ErrEmptyBatch
	}
	if b.Author == "" {
		return invalid(ValidationMissingField, "author", "author is required on every write batch")
	}
	if b.HasRetraction() {
		if b.Correction == nil {
			return ErrCorrectionRequired
		}
		if !b.Correction.Reason.Valid() {
			return invalid(ValidationBadEnum, "correction.reason", "unknown correction reason %q", b.Correction.Reason)
		}
		if b.Correction.Corrected == "" {
			return invalid(ValidationMissingField, "correction.corrected", "correction must reference the corrected entity")
		}
	}

	seen := make(map[int]bool, len(existingSeqs))
	for s := range existingSeqs {
		seen[s] = true
	}
	for _, f := range b.Creates {
		if err := ValidateFact(f); err != nil {
			return err
		}
		if inst, ok := f.Body.(Installment); ok {
			if seen[inst.Seq] {
				return invalid(ValidationDuplicateSeq, "installment.seq", "installment seq %d already exists on contract", inst.Seq)
			}
			seen[inst.Seq] = true
		}
	}
	for _, adj := range b.Adjustments {
		if adj.NewProfitDue.IsNegative() {
			return invalid(ValidationNegativeAmount, "adjustment.profit_due", "profit due cannot be negative")
		}
	}
	return nil
}

// ValidateFact checks one fact against its kind's rules.
func ValidateFact(f Fact) error {
	if f.ContractID == "" {
		return invalid(ValidationMissingField, "contract_id", "fact must reference a contract")
	}
	if f.BusinessDate.IsZero() {
		return invalid(ValidationMalformedDate, "business_date", "business date is required")
	}

	switch body := f.Body.(type) {
	case Fee:
		if !body.Amount.IsPositive() {
			return invalid(ValidationNonPositiveAmount, "fee.amount", "fee amount must be positive, got %s", body.Amount)
		}
		hasDate := !body.DueDate.IsZero()
		hasOffset := body.DaysAfterFunding != nil
		if hasDate == hasOffset {
			return invalid(ValidationMissingField, "fee.due_date", "fee needs exactly one of due_date or days_after_funding")
		}
		if hasOffset && *body.DaysAfterFunding < 0 {
			return invalid(ValidationMalformedDate, "fee.days_after_funding", "days after funding cannot be negative")
		}
	case Installment:
		if body.Seq < 1 {
			return invalid(ValidationMissingField, "installment.seq", "installment seq must be >= 1, got %d", body.Seq)
		}
		if body.DueDate.IsZero() {
			return invalid(ValidationMalformedDate, "installment.due_date", "installment due date is required")
		}
		if body.PrincipalDue.IsNegative() {
			return invalid(ValidationNegativeAmount, "installment.principal_due", "principal due cannot be negative")
		}
		if body.ProfitDue.IsNegative() {
			return invalid(ValidationNegativeAmount, "installment.profit_due", "profit due cannot be negative")
		}
	case Payment:
		if !body.Amount.IsPositive() {
			return invalid(ValidationNonPositiveAmount, "payment.amount", "payment amount must be positive, got %s", body.Amount)
		}
		if body.Reference == "" {
			return invalid(ValidationMissingField, "payment.reference", "payment reference is required")
		}
	case Disbursement:
		if !body.Amount.IsPositive() {
			return invalid(ValidationNonPositiveAmount, "disbursement.amount", "disbursement amount must be positive, got %s", body.Amount)
		}
		switch body.Type {
		case DisbursementFunding, DisbursementRefund, DisbursementExcessReturn:
		default:
			return invalid(ValidationBadEnum, "disbursement.type", "unknown disbursement type %q", body.Type)
		}
	case Deposit:
		if !body.Amount.IsPositive() {
			return invalid(ValidationNonPositiveAmount, "deposit.amount", "deposit amount must be positive, got %s", body.Amount)
		}
		switch body.Type {
		case DepositReceived, DepositRefund, DepositOffset, DepositTransfer:
		default:
			return invalid(ValidationBadEnum, "deposit.type", "unknown deposit type %q", body.Type)
		}
	case PrincipalAllocation:
		if !body.Amount.IsPositive() {
			return invalid(ValidationNonPositiveAmount, "allocation.amount", "allocation amount must be positive, got %s", body.Amount)
		}
		switch body.Type {
		case AllocationFeeSettlement, AllocationInstallmentPrepayment, AllocationDeposit:
		default:
			return invalid(ValidationBadEnum, "allocation.type", "unknown principal allocation type %q", body.Type)
		}
	case WriteOff:
		// Marker fact, nothing to check beyond the envelope.
	case nil:
		return invalid(ValidationMissingField, "body", "fact has no body")
	default:
		return invalid(ValidationBadEnum, "kind", "unknown fact kind %q", f.Kind())
	}
	return nil
}
