package ledger

import "errors"

var (
	// ErrProjectNotFound indicates the project does not exist.
	ErrProjectNotFound = errors.New("ledger: project not found")
	// ErrInvestorNotFound indicates the investor does not exist.
	ErrInvestorNotFound = errors.New("ledger: investor not found")
	// ErrPeriodNotFound indicates the period does not exist.
	ErrPeriodNotFound = errors.New("ledger: period not found")
	// ErrTransactionNotFound indicates the transaction does not exist.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrNoActiveRate means no active interest rate covers the evaluation
	// date; recalculation is impossible until one is configured.
	ErrNoActiveRate = errors.New("ledger: no active interest rate")
	// ErrInvalidAmount rejects zero or wrongly-signed amounts before any mutation.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	// ErrInvalidRate rejects negative interest rates.
	ErrInvalidRate = errors.New("ledger: invalid interest rate")
	// ErrNotPrincipal is returned when an accrual is requested for a
	// non-principal transaction.
	ErrNotPrincipal = errors.New("ledger: transaction is not a principal type")
)
