package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSupplyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "supplies.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write supply file: %v", err)
	}
	return path
}

func TestLoadSupplies(t *testing.T) {
	path := writeSupplyFile(t, `
[[supply]]
Id = "0102000000000000000000000000000000000000000000000000000000000000"
Price = "3000"
BuyerDeposit = "400"
SellerDeposit = "500"
PriceAsset = "NATIVE"
DepositAsset = "NATIVE"
RedeemableForSecs = 1000
`)
	entries, err := LoadSupplies(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.ID[0] != 0x01 || entry.ID[1] != 0x02 {
		t.Fatalf("unexpected id bytes %x", entry.ID[:2])
	}
	if entry.Terms.Price.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("unexpected price %s", entry.Terms.Price)
	}
	if entry.Terms.RedeemableFor != 1000 {
		t.Fatalf("unexpected validity period %d", entry.Terms.RedeemableFor)
	}
}

func TestLoadSuppliesRejectsUnknownField(t *testing.T) {
	path := writeSupplyFile(t, `
[[supply]]
Id = "0102000000000000000000000000000000000000000000000000000000000000"
Price = "3000"
Typo = "boom"
`)
	if _, err := LoadSupplies(path); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadSuppliesRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"short id": `
[[supply]]
Id = "0102"
Price = "3000"
`,
		"bad amount": `
[[supply]]
Id = "0102000000000000000000000000000000000000000000000000000000000000"
Price = "not-a-number"
`,
		"negative amount": `
[[supply]]
Id = "0102000000000000000000000000000000000000000000000000000000000000"
Price = "-5"
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeSupplyFile(t, content)
			if _, err := LoadSupplies(path); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestLoadSuppliesMissingFile(t *testing.T) {
	if _, err := LoadSupplies(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
