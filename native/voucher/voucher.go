package voucher

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Status is a bitmask over the lifecycle flags of a voucher. The lifecycle is
// a DAG of flag-sets rather than a linear enum: several flags can be true at
// once (e.g. a redeemed voucher that was both complained about and cancelled).
type Status uint8

const (
	StatusCommitted Status = 1 << iota
	StatusRedeemed
	StatusRefunded
	StatusComplained
	StatusCancelled
	StatusFinalized
)

// Has reports whether every flag in mask is set.
func (s Status) Has(mask Status) bool { return s&mask == mask }

// HasAny reports whether at least one flag in mask is set.
func (s Status) HasAny(mask Status) bool { return s&mask != 0 }

var statusNames = []struct {
	flag Status
	name string
}{
	{StatusCommitted, "COMMITTED"},
	{StatusRedeemed, "REDEEMED"},
	{StatusRefunded, "REFUNDED"},
	{StatusComplained, "COMPLAINED"},
	{StatusCancelled, "CANCELLED"},
	{StatusFinalized, "FINALIZED"},
}

func (s Status) String() string {
	parts := make([]string, 0, len(statusNames))
	for _, entry := range statusNames {
		if s.Has(entry.flag) {
			parts = append(parts, entry.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Valid reports whether the bitmask only contains known flags and respects the
// structural rules of the lifecycle: redeem and refund are mutually exclusive,
// and a complaint requires a prior redeem or refund.
func (s Status) Valid() bool {
	all := StatusCommitted | StatusRedeemed | StatusRefunded | StatusComplained | StatusCancelled | StatusFinalized
	if s&^all != 0 {
		return false
	}
	if s.Has(StatusRedeemed | StatusRefunded) {
		return false
	}
	if s.Has(StatusComplained) && !s.HasAny(StatusRedeemed|StatusRefunded) {
		return false
	}
	return true
}

// Voucher captures one committed purchase from a supply pool. The three unit
// amounts and the two asset tags are cached from the supply at commit time and
// are immutable afterwards. The record is mutated only through the engine's
// transition entry points.
type Voucher struct {
	ID       [32]byte
	SupplyID [32]byte
	Seq      uint64
	Buyer    [20]byte
	Seller   [20]byte

	PriceAsset    string
	DepositAsset  string
	Price         *big.Int
	BuyerDeposit  *big.Int
	SellerDeposit *big.Int

	CommittedAt   int64
	ValidUntil    int64
	ComplainStart int64
	CancelStart   int64

	Status Status
}

// Clone returns a deep copy of the voucher so callers can safely mutate the
// copy without affecting the stored instance.
func (v *Voucher) Clone() *Voucher {
	if v == nil {
		return nil
	}
	clone := *v
	clone.Price = cloneBigInt(v.Price)
	clone.BuyerDeposit = cloneBigInt(v.BuyerDeposit)
	clone.SellerDeposit = cloneBigInt(v.SellerDeposit)
	return &clone
}

// VoucherID derives the deterministic identifier for the seq-th voucher issued
// from a supply pool.
func VoucherID(supplyID [32]byte, seq uint64) [32]byte {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(supplyID[:], seqBytes[:]))
	return id
}

// NormalizeAsset canonicalizes an asset tag to its uppercase form. The native
// currency is tagged "NATIVE"; fungible tokens use their registered symbol.
func NormalizeAsset(tag string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(tag))
	if trimmed == "" {
		return "", fmt.Errorf("voucher: empty asset tag")
	}
	return trimmed, nil
}

// SanitizeVoucher validates and normalises the supplied record, returning a
// cloned instance with canonical asset casing and non-nil amount fields. The
// function does not mutate the original value.
func SanitizeVoucher(v *Voucher) (*Voucher, error) {
	if v == nil {
		return nil, fmt.Errorf("voucher: nil record")
	}
	clone := v.Clone()
	priceAsset, err := NormalizeAsset(clone.PriceAsset)
	if err != nil {
		return nil, err
	}
	depositAsset, err := NormalizeAsset(clone.DepositAsset)
	if err != nil {
		return nil, err
	}
	clone.PriceAsset = priceAsset
	clone.DepositAsset = depositAsset
	for _, amt := range []*big.Int{clone.Price, clone.BuyerDeposit, clone.SellerDeposit} {
		if amt.Sign() < 0 {
			return nil, fmt.Errorf("voucher: amounts must be non-negative")
		}
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("voucher: invalid status %d", clone.Status)
	}
	return clone, nil
}

// SupplyTerms mirrors the per-unit economics of a supply pool as read from the
// supply collaborator at commit time.
type SupplyTerms struct {
	Price         *big.Int
	BuyerDeposit  *big.Int
	SellerDeposit *big.Int
	PriceAsset    string
	DepositAsset  string
	// RedeemableFor is the validity period in seconds, anchored at commit.
	RedeemableFor int64
}

// SupplyReader is the read-only view of the supply/inventory collaborator.
type SupplyReader interface {
	SupplyTerms(supplyID [32]byte) (*SupplyTerms, error)
}

// Transferor moves settled funds out of the escrow vault. Implementations may
// fail transiently (paused token, insufficient vault balance); the engine
// treats failures as retryable and keeps ledger balances intact.
type Transferor interface {
	TransferOut(asset string, to [20]byte, amount *big.Int) error
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
