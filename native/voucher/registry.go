package voucher

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// ErrSupplyNotFound is returned when a commit references an unknown supply.
var ErrSupplyNotFound = errors.New("voucher: supply not found")

// SupplyRegistry is an in-memory SupplyReader backed by operator-provided
// terms. Registration happens at startup; lookups are concurrent-safe.
type SupplyRegistry struct {
	mu      sync.RWMutex
	entries map[[32]byte]SupplyTerms
}

// NewSupplyRegistry returns an empty registry.
func NewSupplyRegistry() *SupplyRegistry {
	return &SupplyRegistry{entries: make(map[[32]byte]SupplyTerms)}
}

// Register validates and stores the terms for a supply, replacing any previous
// entry with the same identifier.
func (r *SupplyRegistry) Register(supplyID [32]byte, terms SupplyTerms) error {
	if negative(terms.Price) || negative(terms.BuyerDeposit) || negative(terms.SellerDeposit) {
		return fmt.Errorf("voucher: negative amount in supply terms")
	}
	priceAsset, err := NormalizeAsset(terms.PriceAsset)
	if err != nil {
		return err
	}
	depositAsset, err := NormalizeAsset(terms.DepositAsset)
	if err != nil {
		return err
	}
	if terms.RedeemableFor <= 0 {
		return fmt.Errorf("voucher: supply validity period must be positive")
	}
	stored := SupplyTerms{
		Price:         cloneBigInt(terms.Price),
		BuyerDeposit:  cloneBigInt(terms.BuyerDeposit),
		SellerDeposit: cloneBigInt(terms.SellerDeposit),
		PriceAsset:    priceAsset,
		DepositAsset:  depositAsset,
		RedeemableFor: terms.RedeemableFor,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[supplyID] = stored
	return nil
}

// SupplyTerms implements SupplyReader. The returned terms are a copy.
func (r *SupplyRegistry) SupplyTerms(supplyID [32]byte) (*SupplyTerms, error) {
	r.mu.RLock()
	stored, ok := r.entries[supplyID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSupplyNotFound
	}
	clone := SupplyTerms{
		Price:         cloneBigInt(stored.Price),
		BuyerDeposit:  cloneBigInt(stored.BuyerDeposit),
		SellerDeposit: cloneBigInt(stored.SellerDeposit),
		PriceAsset:    stored.PriceAsset,
		DepositAsset:  stored.DepositAsset,
		RedeemableFor: stored.RedeemableFor,
	}
	return &clone, nil
}

func negative(v *big.Int) bool {
	return v != nil && v.Sign() < 0
}
