package voucher

import (
	"fmt"
	"math/big"
)

// LegSplit is the three-way division of a single value leg. The shares always
// sum to the leg total; fractional remainders of the seller deposit are
// assigned to the escrow share so conservation holds by construction.
type LegSplit struct {
	Buyer  *big.Int
	Seller *big.Int
	Escrow *big.Int
}

// Total returns the sum of the three shares.
func (l LegSplit) Total() *big.Int {
	total := new(big.Int).Add(cloneBigInt(l.Buyer), cloneBigInt(l.Seller))
	return total.Add(total, cloneBigInt(l.Escrow))
}

// Outcome is the full fund distribution computed at finalization: one split
// per value leg (product price, buyer deposit, seller deposit).
type Outcome struct {
	Price         LegSplit
	BuyerDeposit  LegSplit
	SellerDeposit LegSplit
}

func legToBuyer(total *big.Int) LegSplit {
	return LegSplit{Buyer: cloneBigInt(total), Seller: big.NewInt(0), Escrow: big.NewInt(0)}
}

func legToSeller(total *big.Int) LegSplit {
	return LegSplit{Buyer: big.NewInt(0), Seller: cloneBigInt(total), Escrow: big.NewInt(0)}
}

func legToEscrow(total *big.Int) LegSplit {
	return LegSplit{Buyer: big.NewInt(0), Seller: big.NewInt(0), Escrow: cloneBigInt(total)}
}

// splitHalfHalf gives half the leg to the buyer and half to the seller,
// truncating toward zero; the remainder lands in escrow.
func splitHalfHalf(total *big.Int) LegSplit {
	t := cloneBigInt(total)
	half := new(big.Int).Quo(t, big.NewInt(2))
	rest := new(big.Int).Sub(t, half)
	rest.Sub(rest, half)
	return LegSplit{Buyer: half, Seller: new(big.Int).Set(half), Escrow: rest}
}

// splitHalfQuarter gives half to the buyer and a quarter to the seller, both
// truncating toward zero; escrow receives the rest.
func splitHalfQuarter(total *big.Int) LegSplit {
	t := cloneBigInt(total)
	half := new(big.Int).Quo(t, big.NewInt(2))
	quarter := new(big.Int).Quo(t, big.NewInt(4))
	rest := new(big.Int).Sub(t, half)
	rest.Sub(rest, quarter)
	return LegSplit{Buyer: half, Seller: quarter, Escrow: rest}
}

// Distribute maps a final flag-set to the payout of the three value legs. The
// mapping is a pure function of the flags: the order in which complain and
// cancel arrived never changes the result. Unreachable flag combinations
// return an error.
//
// The table, with R=redeemed, F=refunded, C=complained, X=cancelled:
//
//	R           price->seller  deposit->buyer   sellerDeposit->seller
//	R+C         price->seller  deposit->buyer   sellerDeposit->escrow
//	R+C+X       price->seller  deposit->buyer   1/2 buyer, 1/4 seller, rest escrow
//	R+X         price->seller  deposit->buyer   1/2 buyer, 1/2 seller, rest escrow
//	F           price->seller  deposit->escrow  sellerDeposit->seller
//	F+C         price->buyer   deposit->escrow  sellerDeposit->escrow
//	F+C+X       price->buyer   deposit->buyer   1/2 buyer, 1/4 seller, rest escrow
//	F+X         price->buyer   deposit->buyer   1/2 buyer, 1/2 seller, rest escrow
//	X           price->buyer   deposit->buyer   1/2 buyer, 1/2 seller, rest escrow
//	(none)      price->seller  deposit->escrow  sellerDeposit->seller
//
// The bare F and (none) rows cover the uncontested-refund and silent-expiry
// terminal conditions respectively.
func Distribute(status Status, price, buyerDeposit, sellerDeposit *big.Int) (*Outcome, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("voucher: invalid flag-set %d", status)
	}
	for _, amt := range []*big.Int{price, buyerDeposit, sellerDeposit} {
		if amt != nil && amt.Sign() < 0 {
			return nil, fmt.Errorf("voucher: negative leg amount")
		}
	}
	redeemed := status.Has(StatusRedeemed)
	refunded := status.Has(StatusRefunded)
	complained := status.Has(StatusComplained)
	cancelled := status.Has(StatusCancelled)

	out := &Outcome{}
	switch {
	case redeemed:
		out.Price = legToSeller(price)
		out.BuyerDeposit = legToBuyer(buyerDeposit)
		switch {
		case complained && cancelled:
			out.SellerDeposit = splitHalfQuarter(sellerDeposit)
		case complained:
			out.SellerDeposit = legToEscrow(sellerDeposit)
		case cancelled:
			out.SellerDeposit = splitHalfHalf(sellerDeposit)
		default:
			out.SellerDeposit = legToSeller(sellerDeposit)
		}
	case refunded:
		switch {
		case complained && cancelled:
			out.Price = legToBuyer(price)
			out.BuyerDeposit = legToBuyer(buyerDeposit)
			out.SellerDeposit = splitHalfQuarter(sellerDeposit)
		case complained:
			out.Price = legToBuyer(price)
			out.BuyerDeposit = legToEscrow(buyerDeposit)
			out.SellerDeposit = legToEscrow(sellerDeposit)
		case cancelled:
			out.Price = legToBuyer(price)
			out.BuyerDeposit = legToBuyer(buyerDeposit)
			out.SellerDeposit = splitHalfHalf(sellerDeposit)
		default:
			out.Price = legToSeller(price)
			out.BuyerDeposit = legToEscrow(buyerDeposit)
			out.SellerDeposit = legToSeller(sellerDeposit)
		}
	case cancelled:
		out.Price = legToBuyer(price)
		out.BuyerDeposit = legToBuyer(buyerDeposit)
		out.SellerDeposit = splitHalfHalf(sellerDeposit)
	default:
		// Silent expiry: the voucher lapsed untouched, equivalent to an
		// uncontested completion for payout purposes.
		out.Price = legToSeller(price)
		out.BuyerDeposit = legToEscrow(buyerDeposit)
		out.SellerDeposit = legToSeller(sellerDeposit)
	}
	return out, nil
}
