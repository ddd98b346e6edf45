package voucher

import (
	"fmt"
	"math/big"

	nativecommon "vouchernet/native/common"
)

// Withdraw drains the owed balance for a party and asset and hands it to the
// transfer collaborator. The debit is two-phase: the owed balance is zeroed
// and parked as pending before the external transfer is attempted, so a
// re-entrant caller can never observe a stale balance. A failed transfer
// restores the balance and surfaces ErrTransferFailed, leaving the withdrawal
// retryable.
func (e *Engine) Withdraw(asset string, party [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	if e.transfer == nil {
		return nil, errNilTransferor
	}
	if err := nativecommon.Guard(e.system, moduleName); err != nil {
		return nil, err
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	amount, err := e.state.LedgerDebitAll(normalized, party)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrNothingOwed
	}
	if err := e.transfer.TransferOut(normalized, party, amount); err != nil {
		if restoreErr := e.state.LedgerRestore(normalized, party); restoreErr != nil {
			return nil, fmt.Errorf("voucher engine: restore after failed transfer: %w", restoreErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.LedgerSettle(normalized, party); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawnEvent(normalized, party, amount))
	return cloneBigInt(amount), nil
}

// OwedBalance returns the currently owed ledger balance for a party and asset.
func (e *Engine) OwedBalance(asset string, party [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	return e.state.LedgerBalance(normalized, party)
}

// DisasterWithdraw drains a party's total locked pre-finalization deposits for
// an asset, bypassing the distribution table. The path is only open while the
// operator has both halted the module and enabled disaster mode, and each
// party can drain a given asset exactly once. The locked balance is zeroed
// before the transfer; a failed transfer restores it without consuming the
// drain, so recovery can be retried.
func (e *Engine) DisasterWithdraw(asset string, party [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	if e.transfer == nil {
		return nil, errNilTransferor
	}
	if err := nativecommon.GuardDisaster(e.system, moduleName); err != nil {
		return nil, err
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	drained, err := e.state.DrainMarked(normalized, party)
	if err != nil {
		return nil, err
	}
	if drained {
		return nil, ErrAlreadyDrained
	}
	locked, err := e.state.LockedBalance(normalized, party)
	if err != nil {
		return nil, err
	}
	if locked == nil || locked.Sign() == 0 {
		return nil, ErrNothingOwed
	}
	if err := e.state.LockedSub(normalized, party, locked); err != nil {
		return nil, err
	}
	if err := e.transfer.TransferOut(normalized, party, locked); err != nil {
		if restoreErr := e.state.LockedAdd(normalized, party, locked); restoreErr != nil {
			return nil, fmt.Errorf("voucher engine: restore after failed drain: %w", restoreErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.MarkDrained(normalized, party); err != nil {
		return nil, err
	}
	e.emit(NewDisasterDrainedEvent(normalized, party, locked))
	return cloneBigInt(locked), nil
}
