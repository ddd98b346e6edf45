package voucher

import "errors"

var (
	errNilState      = errors.New("voucher engine: state not configured")
	errNilSupply     = errors.New("voucher engine: supply reader not configured")
	errNilTransferor = errors.New("voucher engine: transferor not configured")
	errNilTreasury   = errors.New("voucher engine: escrow treasury not configured")

	// ErrVoucherNotFound is returned when no record exists for the identifier.
	ErrVoucherNotFound = errors.New("voucher engine: voucher not found")
	// ErrWrongActor is returned when the caller is not the party allowed to
	// perform the transition.
	ErrWrongActor = errors.New("voucher engine: wrong actor")
	// ErrIllegalTransition is returned when the current flag-set does not
	// admit the requested transition.
	ErrIllegalTransition = errors.New("voucher engine: illegal transition")
	// ErrWindowExpired is returned when the transition's time window has
	// already elapsed.
	ErrWindowExpired = errors.New("voucher engine: window expired")
	// ErrAlreadyFinalized is returned for lifecycle actions against a
	// finalized voucher.
	ErrAlreadyFinalized = errors.New("voucher engine: voucher already finalized")
	// ErrNotYetTerminal is returned by Finalize while the voucher can still
	// change economically.
	ErrNotYetTerminal = errors.New("voucher engine: voucher not yet terminal")
	// ErrNothingOwed is returned by withdrawal paths when the balance is zero.
	ErrNothingOwed = errors.New("voucher engine: nothing owed")
	// ErrAlreadyDrained is returned when a party re-attempts the emergency
	// drain for an asset it already recovered.
	ErrAlreadyDrained = errors.New("voucher engine: balance already drained")
	// ErrTransferFailed wraps failures of the external transfer collaborator.
	// The ledger balance is restored before the error is returned, so the
	// withdrawal may be retried.
	ErrTransferFailed = errors.New("voucher engine: transfer failed")
)
