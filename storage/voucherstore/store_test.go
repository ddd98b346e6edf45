package voucherstore

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"vouchernet/native/voucher"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "vouchers.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testParty(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestVoucherRoundTrip(t *testing.T) {
	store := newTestStore(t)
	v := &voucher.Voucher{
		ID:            voucher.VoucherID([32]byte{0x01}, 4),
		SupplyID:      [32]byte{0x01},
		Seq:           4,
		Buyer:         testParty(0x11),
		Seller:        testParty(0x22),
		PriceAsset:    "NATIVE",
		DepositAsset:  "USDX",
		Price:         big.NewInt(3000),
		BuyerDeposit:  big.NewInt(400),
		SellerDeposit: big.NewInt(500),
		CommittedAt:   100,
		ValidUntil:    1100,
		ComplainStart: 150,
		CancelStart:   150,
		Status:        voucher.StatusCommitted | voucher.StatusRedeemed,
	}
	require.NoError(t, store.VoucherPut(v))

	loaded, ok := store.VoucherGet(v.ID)
	require.True(t, ok)
	require.Equal(t, v.SupplyID, loaded.SupplyID)
	require.Equal(t, v.Buyer, loaded.Buyer)
	require.Equal(t, v.Seller, loaded.Seller)
	require.Equal(t, v.Status, loaded.Status)
	require.Equal(t, v.ValidUntil, loaded.ValidUntil)
	require.Zero(t, v.Price.Cmp(loaded.Price))
	require.Zero(t, v.SellerDeposit.Cmp(loaded.SellerDeposit))

	_, ok = store.VoucherGet([32]byte{0xFF})
	require.False(t, ok)
}

func TestVoucherPutRejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	bad := &voucher.Voucher{
		PriceAsset:   "",
		DepositAsset: "USDX",
		Status:       voucher.StatusCommitted,
	}
	require.Error(t, store.VoucherPut(bad))
}

func TestLedgerCreditAndWithdrawCycle(t *testing.T) {
	store := newTestStore(t)
	party := testParty(0x33)

	require.NoError(t, store.LedgerCredit("NATIVE", party, big.NewInt(250)))
	require.NoError(t, store.LedgerCredit("NATIVE", party, big.NewInt(150)))

	balance, err := store.LedgerBalance("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(400)))

	// Debit parks the full balance as pending and zeroes owed.
	amount, err := store.LedgerDebitAll("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, amount.Cmp(big.NewInt(400)))
	balance, err = store.LedgerBalance("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	// Restore puts the pending amount back after a failed transfer.
	require.NoError(t, store.LedgerRestore("NATIVE", party))
	balance, err = store.LedgerBalance("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(400)))

	// Settle clears the pending amount for good.
	amount, err = store.LedgerDebitAll("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, amount.Cmp(big.NewInt(400)))
	require.NoError(t, store.LedgerSettle("NATIVE", party))
	require.NoError(t, store.LedgerRestore("NATIVE", party))
	balance, err = store.LedgerBalance("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestLedgerBalancesAreScopedByAsset(t *testing.T) {
	store := newTestStore(t)
	party := testParty(0x44)
	require.NoError(t, store.LedgerCredit("NATIVE", party, big.NewInt(10)))
	require.NoError(t, store.LedgerCredit("USDX", party, big.NewInt(20)))

	native, err := store.LedgerBalance("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, native.Cmp(big.NewInt(10)))
	usdx, err := store.LedgerBalance("USDX", party)
	require.NoError(t, err)
	require.Zero(t, usdx.Cmp(big.NewInt(20)))
}

func TestLockedBalances(t *testing.T) {
	store := newTestStore(t)
	party := testParty(0x55)
	require.NoError(t, store.LockedAdd("NATIVE", party, big.NewInt(500)))
	require.NoError(t, store.LockedSub("NATIVE", party, big.NewInt(200)))

	locked, err := store.LockedBalance("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, locked.Cmp(big.NewInt(300)))

	require.Error(t, store.LockedSub("NATIVE", party, big.NewInt(400)))
}

func TestDrainMarking(t *testing.T) {
	store := newTestStore(t)
	party := testParty(0x66)

	marked, err := store.DrainMarked("NATIVE", party)
	require.NoError(t, err)
	require.False(t, marked)

	require.NoError(t, store.MarkDrained("NATIVE", party))
	marked, err = store.DrainMarked("NATIVE", party)
	require.NoError(t, err)
	require.True(t, marked)

	// The flag is scoped per asset.
	marked, err = store.DrainMarked("USDX", party)
	require.NoError(t, err)
	require.False(t, marked)
}

func TestVoucherGetCorruptRecord(t *testing.T) {
	store := newTestStore(t)
	id := voucher.VoucherID([32]byte{0x0A}, 1)
	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVouchers).Put(id[:], []byte("not a record"))
	}))
	// A damaged record reads as absent but must never panic; the corruption
	// is surfaced through the store's logging.
	_, ok := store.VoucherGet(id)
	require.False(t, ok)
}

func TestAtomicallyRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	party := testParty(0x77)
	v := &voucher.Voucher{
		ID:            voucher.VoucherID([32]byte{0x09}, 1),
		SupplyID:      [32]byte{0x09},
		Seq:           1,
		Buyer:         testParty(0x11),
		Seller:        testParty(0x22),
		PriceAsset:    "NATIVE",
		DepositAsset:  "NATIVE",
		Price:         big.NewInt(3000),
		BuyerDeposit:  big.NewInt(400),
		SellerDeposit: big.NewInt(500),
		CommittedAt:   100,
		ValidUntil:    1100,
		Status:        voucher.StatusCommitted,
	}

	boom := errors.New("mid-transaction failure")
	err := store.Atomically(func(st voucher.EngineState) error {
		require.NoError(t, st.VoucherPut(v))
		require.NoError(t, st.LedgerCredit("NATIVE", party, big.NewInt(900)))
		require.NoError(t, st.LockedAdd("NATIVE", party, big.NewInt(50)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Every mutation inside the failed unit is discarded.
	_, ok := store.VoucherGet(v.ID)
	require.False(t, ok)
	owed, err := store.LedgerBalance("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, owed.Sign())
	locked, err := store.LockedBalance("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, locked.Sign())

	// The same unit without the error persists as a whole.
	require.NoError(t, store.Atomically(func(st voucher.EngineState) error {
		if err := st.VoucherPut(v); err != nil {
			return err
		}
		return st.LedgerCredit("NATIVE", party, big.NewInt(900))
	}))
	_, ok = store.VoucherGet(v.ID)
	require.True(t, ok)
	owed, err = store.LedgerBalance("NATIVE", party)
	require.NoError(t, err)
	require.Zero(t, owed.Cmp(big.NewInt(900)))
}

func TestStoreSatisfiesEngineState(t *testing.T) {
	var _ voucher.EngineState = (*Store)(nil)
}
