package voucher

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"vouchernet/core/types"
)

const (
	EventTypeVoucherCommitted  = "voucher.committed"
	EventTypeVoucherRedeemed   = "voucher.redeemed"
	EventTypeVoucherRefunded   = "voucher.refunded"
	EventTypeVoucherComplained = "voucher.complained"
	EventTypeVoucherCancelled  = "voucher.cancelled"
	EventTypeVoucherFinalized  = "voucher.finalized"
	EventTypeWithdrawn         = "voucher.ledger.withdrawn"
	EventTypeDisasterDrained   = "voucher.ledger.disaster_drained"
)

// NewCommittedEvent returns the canonical event payload for a newly committed
// voucher.
func NewCommittedEvent(v *Voucher) *types.Event { return newVoucherEvent(EventTypeVoucherCommitted, v) }

// NewRedeemedEvent returns the canonical event payload emitted when the buyer
// redeems a voucher.
func NewRedeemedEvent(v *Voucher) *types.Event { return newVoucherEvent(EventTypeVoucherRedeemed, v) }

// NewRefundedEvent returns the canonical event payload emitted when the buyer
// requests a refund.
func NewRefundedEvent(v *Voucher) *types.Event { return newVoucherEvent(EventTypeVoucherRefunded, v) }

// NewComplainedEvent returns the canonical event payload emitted when the
// buyer raises a complaint.
func NewComplainedEvent(v *Voucher) *types.Event {
	return newVoucherEvent(EventTypeVoucherComplained, v)
}

// NewCancelledEvent returns the canonical event payload emitted when the
// seller self-reports a fault.
func NewCancelledEvent(v *Voucher) *types.Event { return newVoucherEvent(EventTypeVoucherCancelled, v) }

// NewFinalizedEvent returns the canonical event payload for a finalization,
// carrying the full per-party amounts of each value leg so downstream
// consumers can audit the distribution.
func NewFinalizedEvent(v *Voucher, out *Outcome) *types.Event {
	evt := newVoucherEvent(EventTypeVoucherFinalized, v)
	if out == nil {
		return evt
	}
	addSplit(evt.Attributes, "price", out.Price)
	addSplit(evt.Attributes, "buyerDeposit", out.BuyerDeposit)
	addSplit(evt.Attributes, "sellerDeposit", out.SellerDeposit)
	return evt
}

// NewWithdrawnEvent returns the event payload for a completed ledger
// withdrawal.
func NewWithdrawnEvent(asset string, party [20]byte, amount *big.Int) *types.Event {
	return newLedgerEvent(EventTypeWithdrawn, asset, party, amount)
}

// NewDisasterDrainedEvent returns the event payload for an emergency drain of
// locked deposits.
func NewDisasterDrainedEvent(asset string, party [20]byte, amount *big.Int) *types.Event {
	return newLedgerEvent(EventTypeDisasterDrained, asset, party, amount)
}

func newVoucherEvent(eventType string, v *Voucher) *types.Event {
	attrs := make(map[string]string)
	if v == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeVoucher(v)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["supplyId"] = hex.EncodeToString(sanitized.SupplyID[:])
	attrs["seq"] = strconv.FormatUint(sanitized.Seq, 10)
	attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["status"] = sanitized.Status.String()
	attrs["committedAt"] = strconv.FormatInt(sanitized.CommittedAt, 10)
	attrs["validUntil"] = strconv.FormatInt(sanitized.ValidUntil, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newLedgerEvent(eventType, asset string, party [20]byte, amount *big.Int) *types.Event {
	attrs := map[string]string{
		"asset":  asset,
		"party":  hex.EncodeToString(party[:]),
		"amount": cloneBigInt(amount).String(),
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func addSplit(attrs map[string]string, leg string, split LegSplit) {
	attrs[leg+".buyer"] = cloneBigInt(split.Buyer).String()
	attrs[leg+".seller"] = cloneBigInt(split.Seller).String()
	attrs[leg+".escrow"] = cloneBigInt(split.Escrow).String()
}
