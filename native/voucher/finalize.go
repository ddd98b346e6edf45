package voucher

import (
	nativecommon "vouchernet/native/common"
)

// terminal reports whether the voucher's flag-set can no longer change
// economically at the given instant: every remaining counter-party action is
// either already applied or its window has elapsed.
func (e *Engine) terminal(v *Voucher, now int64) bool {
	if !v.Status.HasAny(StatusRedeemed | StatusRefunded) {
		if v.Status.Has(StatusCancelled) {
			// Neither redeem nor refund can follow a cancellation.
			return true
		}
		return now >= v.ValidUntil
	}
	complainOpen := !v.Status.Has(StatusComplained) && now <= v.ComplainStart+e.complainPeriod
	cancelOpen := !v.Status.Has(StatusCancelled) && now <= v.CancelStart+e.cancelPeriod
	return !complainOpen && !cancelOpen
}

// Finalize marks a terminal voucher as finalized exactly once, running the
// distribution table over its final flag-set and crediting the resulting
// shares into the escrow ledger. Calling it on an already-finalized voucher is
// a no-op success; calling it before a terminal condition holds returns
// ErrNotYetTerminal.
func (e *Engine) Finalize(id [32]byte, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.system, moduleName); err != nil {
		return err
	}
	v, err := e.loadVoucher(id)
	if err != nil {
		return err
	}
	if v.Status.Has(StatusFinalized) {
		return nil
	}
	if !e.terminal(v, now) {
		return ErrNotYetTerminal
	}
	if err := e.ensureTreasuryConfigured(); err != nil {
		return err
	}
	out, err := Distribute(v.Status, v.Price, v.BuyerDeposit, v.SellerDeposit)
	if err != nil {
		return err
	}
	v.Status |= StatusFinalized
	// Ledger credits, deposit release and the status write commit as one
	// store transaction. A failure part way through must leave the ledger
	// untouched, or a retry would credit every leg a second time.
	if err := e.state.Atomically(func(st EngineState) error {
		if err := e.commitOutcome(st, v, out); err != nil {
			return err
		}
		if err := releaseDeposits(st, v); err != nil {
			return err
		}
		return st.VoucherPut(v)
	}); err != nil {
		return err
	}
	e.emit(NewFinalizedEvent(v, out))
	return nil
}

// commitOutcome pushes the per-leg shares into the owed ledger. The price leg
// settles in the price asset, both deposit legs in the deposit asset.
func (e *Engine) commitOutcome(st EngineState, v *Voucher, out *Outcome) error {
	if err := e.creditSplit(st, v.PriceAsset, v, out.Price); err != nil {
		return err
	}
	if err := e.creditSplit(st, v.DepositAsset, v, out.BuyerDeposit); err != nil {
		return err
	}
	return e.creditSplit(st, v.DepositAsset, v, out.SellerDeposit)
}

func (e *Engine) creditSplit(st EngineState, asset string, v *Voucher, split LegSplit) error {
	if split.Buyer != nil && split.Buyer.Sign() > 0 {
		if err := st.LedgerCredit(asset, v.Buyer, split.Buyer); err != nil {
			return err
		}
	}
	if split.Seller != nil && split.Seller.Sign() > 0 {
		if err := st.LedgerCredit(asset, v.Seller, split.Seller); err != nil {
			return err
		}
	}
	if split.Escrow != nil && split.Escrow.Sign() > 0 {
		if err := st.LedgerCredit(asset, e.treasury, split.Escrow); err != nil {
			return err
		}
	}
	return nil
}
