package voucher

import (
	"fmt"
	"math/big"
	"sync"

	"vouchernet/core/events"
	"vouchernet/core/types"
	nativecommon "vouchernet/native/common"
)

const moduleName = "voucher"

// Default window durations, overridable via SetWindows. Production deployments
// configure much longer windows; the defaults keep local setups usable.
const (
	DefaultComplainPeriod int64 = 60
	DefaultCancelPeriod   int64 = 60
)

// EngineState is the persistence backend for voucher records and the escrow
// ledger. Implementations must apply each call atomically.
type EngineState interface {
	// Atomically applies every store call made inside fn as one unit: when fn
	// returns an error none of its mutations may persist.
	Atomically(fn func(EngineState) error) error

	VoucherPut(*Voucher) error
	VoucherGet(id [32]byte) (*Voucher, bool)

	// Owed balances, credited at finalization and drained by withdrawal.
	LedgerCredit(asset string, party [20]byte, amount *big.Int) error
	LedgerBalance(asset string, party [20]byte) (*big.Int, error)
	// LedgerDebitAll atomically zeroes the owed balance, parks it as pending
	// and returns the parked amount.
	LedgerDebitAll(asset string, party [20]byte) (*big.Int, error)
	// LedgerSettle clears the pending amount after a successful transfer.
	LedgerSettle(asset string, party [20]byte) error
	// LedgerRestore moves the pending amount back to owed after a failed
	// transfer.
	LedgerRestore(asset string, party [20]byte) error

	// Locked balances track pre-finalization deposits per party for the
	// emergency drain path.
	LockedAdd(asset string, party [20]byte, amount *big.Int) error
	LockedSub(asset string, party [20]byte, amount *big.Int) error
	LockedBalance(asset string, party [20]byte) (*big.Int, error)
	DrainMarked(asset string, party [20]byte) (bool, error)
	MarkDrained(asset string, party [20]byte) error
}

type voucherEvent struct {
	evt *types.Event
}

func (e voucherEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e voucherEvent) Event() *types.Event { return e.evt }

// Engine owns the voucher lifecycle: it validates each action against the
// current flag-set and timing windows, finalizes terminal vouchers through the
// distribution table and maintains the escrow ledger. Every exported entry
// point is a single atomic unit of work; guards always re-read the stored
// record inside the critical section.
type Engine struct {
	mu       sync.Mutex
	state    EngineState
	supply   SupplyReader
	transfer Transferor
	emitter  events.Emitter
	system   nativecommon.SystemView
	treasury [20]byte

	complainPeriod int64
	cancelPeriod   int64
}

// NewEngine creates a voucher engine with a no-op emitter and default window
// durations. Callers wire the collaborators via the Set* methods. Every entry
// point takes the caller's clock reading explicitly so transition guards and
// replayed finalization scans stay deterministic.
func NewEngine() *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		complainPeriod: DefaultComplainPeriod,
		cancelPeriod:   DefaultCancelPeriod,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetSupplyReader configures the read-only supply collaborator consulted at
// commit time.
func (e *Engine) SetSupplyReader(supply SupplyReader) { e.supply = supply }

// SetTransferor configures the collaborator that moves settled funds out of
// the escrow vault.
func (e *Engine) SetTransferor(t Transferor) { e.transfer = t }

// SetTreasury configures the address that receives forfeited escrow shares.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetSystemView configures the pause/disaster gating predicates.
func (e *Engine) SetSystemView(v nativecommon.SystemView) { e.system = v }

// SetWindows overrides the complain and cancel window durations in seconds.
// Non-positive values keep the current setting.
func (e *Engine) SetWindows(complainSecs, cancelSecs int64) {
	if complainSecs > 0 {
		e.complainPeriod = complainSecs
	}
	if cancelSecs > 0 {
		e.cancelPeriod = cancelSecs
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(voucherEvent{evt: event})
}

func (e *Engine) loadVoucher(id [32]byte) (*Voucher, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	v, ok := e.state.VoucherGet(id)
	if !ok {
		return nil, ErrVoucherNotFound
	}
	return v, nil
}

func (e *Engine) storeVoucher(v *Voucher) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.VoucherPut(v)
}

// Commit establishes the initial {COMMITTED} state for the seq-th voucher of a
// supply pool, caching the pool's unit amounts into the record and locking the
// corresponding deposits for disaster recovery. Re-committing the same voucher
// with identical parties is idempotent.
func (e *Engine) Commit(supplyID [32]byte, seq uint64, buyer, seller [20]byte, now int64) (*Voucher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	if e.supply == nil {
		return nil, errNilSupply
	}
	if err := nativecommon.Guard(e.system, moduleName); err != nil {
		return nil, err
	}
	id := VoucherID(supplyID, seq)
	if existing, ok := e.state.VoucherGet(id); ok {
		if existing.Buyer != buyer || existing.Seller != seller {
			return nil, fmt.Errorf("voucher engine: identifier already exists with different parties")
		}
		return existing.Clone(), nil
	}
	terms, err := e.supply.SupplyTerms(supplyID)
	if err != nil {
		return nil, fmt.Errorf("voucher engine: supply lookup: %w", err)
	}
	if terms == nil {
		return nil, fmt.Errorf("voucher engine: supply terms missing")
	}
	priceAsset, err := NormalizeAsset(terms.PriceAsset)
	if err != nil {
		return nil, err
	}
	depositAsset, err := NormalizeAsset(terms.DepositAsset)
	if err != nil {
		return nil, err
	}
	if terms.RedeemableFor <= 0 {
		return nil, fmt.Errorf("voucher engine: supply validity period must be positive")
	}
	v := &Voucher{
		ID:            id,
		SupplyID:      supplyID,
		Seq:           seq,
		Buyer:         buyer,
		Seller:        seller,
		PriceAsset:    priceAsset,
		DepositAsset:  depositAsset,
		Price:         cloneBigInt(terms.Price),
		BuyerDeposit:  cloneBigInt(terms.BuyerDeposit),
		SellerDeposit: cloneBigInt(terms.SellerDeposit),
		CommittedAt:   now,
		ValidUntil:    now + terms.RedeemableFor,
		Status:        StatusCommitted,
	}
	sanitized, err := SanitizeVoucher(v)
	if err != nil {
		return nil, err
	}
	// Lock-then-put runs as one store transaction: a failure part way through
	// must not leave deposits locked for a voucher that was never recorded.
	if err := e.state.Atomically(func(st EngineState) error {
		if err := lockDeposits(st, sanitized); err != nil {
			return err
		}
		return st.VoucherPut(sanitized)
	}); err != nil {
		return nil, err
	}
	e.emit(NewCommittedEvent(sanitized))
	return sanitized.Clone(), nil
}

func lockDeposits(st EngineState, v *Voucher) error {
	if v.Price.Sign() > 0 {
		if err := st.LockedAdd(v.PriceAsset, v.Buyer, v.Price); err != nil {
			return err
		}
	}
	if v.BuyerDeposit.Sign() > 0 {
		if err := st.LockedAdd(v.DepositAsset, v.Buyer, v.BuyerDeposit); err != nil {
			return err
		}
	}
	if v.SellerDeposit.Sign() > 0 {
		if err := st.LockedAdd(v.DepositAsset, v.Seller, v.SellerDeposit); err != nil {
			return err
		}
	}
	return nil
}

func releaseDeposits(st EngineState, v *Voucher) error {
	if v.Price.Sign() > 0 {
		if err := st.LockedSub(v.PriceAsset, v.Buyer, v.Price); err != nil {
			return err
		}
	}
	if v.BuyerDeposit.Sign() > 0 {
		if err := st.LockedSub(v.DepositAsset, v.Buyer, v.BuyerDeposit); err != nil {
			return err
		}
	}
	if v.SellerDeposit.Sign() > 0 {
		if err := st.LockedSub(v.DepositAsset, v.Seller, v.SellerDeposit); err != nil {
			return err
		}
	}
	return nil
}

// Redeem marks the voucher as redeemed by the buyer and starts the seller's
// cancel window as well as the buyer's complain window.
func (e *Engine) Redeem(id [32]byte, caller [20]byte, now int64) error {
	return e.exercise(id, caller, now, StatusRedeemed)
}

// Refund marks the voucher as refunded at the buyer's request and starts the
// complain and cancel windows.
func (e *Engine) Refund(id [32]byte, caller [20]byte, now int64) error {
	return e.exercise(id, caller, now, StatusRefunded)
}

// exercise applies the redeem/refund transition; both share identical guards
// and only differ in the flag they set.
func (e *Engine) exercise(id [32]byte, caller [20]byte, now int64, flag Status) error {
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
		return ErrAlreadyFinalized
	}
	if caller != v.Buyer {
		return ErrWrongActor
	}
	if !v.Status.Has(StatusCommitted) || v.Status.HasAny(StatusRedeemed|StatusRefunded|StatusCancelled) {
		return ErrIllegalTransition
	}
	if now >= v.ValidUntil {
		return ErrWindowExpired
	}
	v.Status |= flag
	v.ComplainStart = now
	v.CancelStart = now
	if err := e.storeVoucher(v); err != nil {
		return err
	}
	if flag == StatusRedeemed {
		e.emit(NewRedeemedEvent(v))
	} else {
		e.emit(NewRefundedEvent(v))
	}
	return nil
}

// Complain records the buyer's dispute over a redeemed or refunded voucher.
// Raising a complaint re-opens the seller's cancel window so the fault can
// still be acknowledged.
func (e *Engine) Complain(id [32]byte, caller [20]byte, now int64) error {
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
		return ErrAlreadyFinalized
	}
	if caller != v.Buyer {
		return ErrWrongActor
	}
	if !v.Status.HasAny(StatusRedeemed | StatusRefunded) {
		return ErrIllegalTransition
	}
	if v.Status.Has(StatusComplained) {
		return ErrIllegalTransition
	}
	if now > v.ComplainStart+e.complainPeriod {
		return ErrWindowExpired
	}
	v.Status |= StatusComplained
	if !v.Status.Has(StatusCancelled) {
		v.CancelStart = now
	}
	if err := e.storeVoucher(v); err != nil {
		return err
	}
	e.emit(NewComplainedEvent(v))
	return nil
}

// Cancel records the seller's self-reported fault. Before any redeem or
// refund the seller may cancel at any time until the validity expiry; after
// one, the cancel window started by that action (or re-opened by a complaint)
// applies.
func (e *Engine) Cancel(id [32]byte, caller [20]byte, now int64) error {
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
		return ErrAlreadyFinalized
	}
	if caller != v.Seller {
		return ErrWrongActor
	}
	if v.Status.Has(StatusCancelled) {
		return ErrIllegalTransition
	}
	if !v.Status.HasAny(StatusRedeemed | StatusRefunded) {
		if now >= v.ValidUntil {
			return ErrWindowExpired
		}
	} else if now > v.CancelStart+e.cancelPeriod {
		return ErrWindowExpired
	}
	v.Status |= StatusCancelled
	if err := e.storeVoucher(v); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(v))
	return nil
}

// Get returns a copy of the stored voucher record.
func (e *Engine) Get(id [32]byte) (*Voucher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.loadVoucher(id)
	if err != nil {
		return nil, err
	}
	return v.Clone(), nil
}

func (e *Engine) ensureTreasuryConfigured() error {
	if e == nil {
		return errNilTreasury
	}
	if e.treasury == ([20]byte{}) {
		return errNilTreasury
	}
	return nil
}
