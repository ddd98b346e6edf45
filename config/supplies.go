package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"

	"vouchernet/native/voucher"
)

// SupplyEntry is one supply listing in the supply file.
type SupplyEntry struct {
	ID    [32]byte
	Terms voucher.SupplyTerms
}

type supplyFile struct {
	Supply []supplyRow `toml:"supply"`
}

type supplyRow struct {
	ID                string `toml:"Id"`
	Price             string `toml:"Price"`
	BuyerDeposit      string `toml:"BuyerDeposit"`
	SellerDeposit     string `toml:"SellerDeposit"`
	PriceAsset        string `toml:"PriceAsset"`
	DepositAsset      string `toml:"DepositAsset"`
	RedeemableForSecs int64  `toml:"RedeemableForSecs"`
}

// LoadSupplies parses the TOML supply file. Amounts are decimal strings so
// listings are not limited by int64.
func LoadSupplies(path string) ([]SupplyEntry, error) {
	var file supplyFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("supply file %s has unknown field %s", path, undecoded[0])
	}
	entries := make([]SupplyEntry, 0, len(file.Supply))
	for i, row := range file.Supply {
		entry, err := parseSupplyRow(row)
		if err != nil {
			return nil, fmt.Errorf("supply file %s entry %d: %w", path, i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseSupplyRow(row supplyRow) (SupplyEntry, error) {
	var entry SupplyEntry
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(row.ID), "0x"))
	if err != nil {
		return entry, fmt.Errorf("invalid Id: %w", err)
	}
	if len(raw) != len(entry.ID) {
		return entry, fmt.Errorf("Id must be 32 bytes, got %d", len(raw))
	}
	copy(entry.ID[:], raw)

	if entry.Terms.Price, err = parseAmount(row.Price, "Price"); err != nil {
		return entry, err
	}
	if entry.Terms.BuyerDeposit, err = parseAmount(row.BuyerDeposit, "BuyerDeposit"); err != nil {
		return entry, err
	}
	if entry.Terms.SellerDeposit, err = parseAmount(row.SellerDeposit, "SellerDeposit"); err != nil {
		return entry, err
	}
	entry.Terms.PriceAsset = row.PriceAsset
	entry.Terms.DepositAsset = row.DepositAsset
	entry.Terms.RedeemableFor = row.RedeemableForSecs
	return entry, nil
}

func parseAmount(raw, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s amount %q", field, raw)
	}
	return amount, nil
}
