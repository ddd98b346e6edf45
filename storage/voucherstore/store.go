package voucherstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	bolt "go.etcd.io/bbolt"

	"vouchernet/native/voucher"
)

var (
	bucketVouchers = []byte("vouchers")
	bucketOwed     = []byte("ledger_owed")
	bucketPending  = []byte("ledger_pending")
	bucketLocked   = []byte("ledger_locked")
	bucketDrained  = []byte("ledger_drained")
	bucketPayouts  = []byte("payout_journal")
)

// Store is the BoltDB-backed persistence layer for voucher records and the
// escrow ledger. It implements voucher.EngineState; every method runs inside
// a single Bolt transaction, and Atomically lets the engine span several
// calls with one transaction so multi-step operations commit or roll back as
// a unit.
type Store struct {
	db *bolt.DB
}

// voucherRecord mirrors voucher.Voucher with a stable JSON shape.
type voucherRecord struct {
	ID            string `json:"id"`
	SupplyID      string `json:"supplyId"`
	Seq           uint64 `json:"seq"`
	Buyer         string `json:"buyer"`
	Seller        string `json:"seller"`
	PriceAsset    string `json:"priceAsset"`
	DepositAsset  string `json:"depositAsset"`
	Price         string `json:"price"`
	BuyerDeposit  string `json:"buyerDeposit"`
	SellerDeposit string `json:"sellerDeposit"`
	CommittedAt   int64  `json:"committedAt"`
	ValidUntil    int64  `json:"validUntil"`
	ComplainStart int64  `json:"complainStart"`
	CancelStart   int64  `json:"cancelStart"`
	Status        uint8  `json:"status"`
}

// NewStore initialises (and migrates) the BoltDB-backed store.
func NewStore(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketVouchers, bucketOwed, bucketPending, bucketLocked, bucketDrained, bucketPayouts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// stateTx implements voucher.EngineState over one open Bolt transaction.
type stateTx struct {
	tx *bolt.Tx
}

// Atomically runs fn against a transaction-scoped state view. A non-nil error
// from fn aborts the Bolt transaction, discarding every mutation fn made.
func (s *Store) Atomically(fn func(voucher.EngineState) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&stateTx{tx: tx})
	})
}

// Atomically on an open transaction simply runs fn in place; the enclosing
// transaction already provides the all-or-nothing boundary.
func (t *stateTx) Atomically(fn func(voucher.EngineState) error) error {
	return fn(t)
}

func encodeVoucher(v *voucher.Voucher) ([]byte, error) {
	record := voucherRecord{
		ID:            hex.EncodeToString(v.ID[:]),
		SupplyID:      hex.EncodeToString(v.SupplyID[:]),
		Seq:           v.Seq,
		Buyer:         hex.EncodeToString(v.Buyer[:]),
		Seller:        hex.EncodeToString(v.Seller[:]),
		PriceAsset:    v.PriceAsset,
		DepositAsset:  v.DepositAsset,
		Price:         v.Price.String(),
		BuyerDeposit:  v.BuyerDeposit.String(),
		SellerDeposit: v.SellerDeposit.String(),
		CommittedAt:   v.CommittedAt,
		ValidUntil:    v.ValidUntil,
		ComplainStart: v.ComplainStart,
		CancelStart:   v.CancelStart,
		Status:        uint8(v.Status),
	}
	return json.Marshal(record)
}

func decodeVoucher(data []byte) (*voucher.Voucher, error) {
	var record voucherRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	v := &voucher.Voucher{
		Seq:           record.Seq,
		PriceAsset:    record.PriceAsset,
		DepositAsset:  record.DepositAsset,
		CommittedAt:   record.CommittedAt,
		ValidUntil:    record.ValidUntil,
		ComplainStart: record.ComplainStart,
		CancelStart:   record.CancelStart,
		Status:        voucher.Status(record.Status),
	}
	if err := decodeHash(record.ID, v.ID[:]); err != nil {
		return nil, err
	}
	if err := decodeHash(record.SupplyID, v.SupplyID[:]); err != nil {
		return nil, err
	}
	if err := decodeHash(record.Buyer, v.Buyer[:]); err != nil {
		return nil, err
	}
	if err := decodeHash(record.Seller, v.Seller[:]); err != nil {
		return nil, err
	}
	var ok bool
	if v.Price, ok = new(big.Int).SetString(record.Price, 10); !ok {
		return nil, fmt.Errorf("voucherstore: corrupt price amount %q", record.Price)
	}
	if v.BuyerDeposit, ok = new(big.Int).SetString(record.BuyerDeposit, 10); !ok {
		return nil, fmt.Errorf("voucherstore: corrupt buyer deposit %q", record.BuyerDeposit)
	}
	if v.SellerDeposit, ok = new(big.Int).SetString(record.SellerDeposit, 10); !ok {
		return nil, fmt.Errorf("voucherstore: corrupt seller deposit %q", record.SellerDeposit)
	}
	return v, nil
}

func decodeHash(encoded string, dst []byte) error {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("voucherstore: unexpected field length %d", len(raw))
	}
	copy(dst, raw)
	return nil
}

// VoucherPut persists a sanitized copy of the record.
func (t *stateTx) VoucherPut(v *voucher.Voucher) error {
	sanitized, err := voucher.SanitizeVoucher(v)
	if err != nil {
		return err
	}
	data, err := encodeVoucher(sanitized)
	if err != nil {
		return err
	}
	return t.tx.Bucket(bucketVouchers).Put(sanitized.ID[:], data)
}

// VoucherGet loads a voucher record by identifier. A record that fails to
// decode is reported loudly rather than silently treated as absent.
func (t *stateTx) VoucherGet(id [32]byte) (*voucher.Voucher, bool) {
	data := t.tx.Bucket(bucketVouchers).Get(id[:])
	if data == nil {
		return nil, false
	}
	v, err := decodeVoucher(data)
	if err != nil {
		slog.Error("voucher record corrupt", "id", hex.EncodeToString(id[:]), "error", err.Error())
		return nil, false
	}
	return v, true
}

func balanceKey(asset string, party [20]byte) []byte {
	key := make([]byte, 0, len(asset)+1+len(party))
	key = append(key, asset...)
	key = append(key, 0x00)
	key = append(key, party[:]...)
	return key
}

func readBalance(bucket *bolt.Bucket, key []byte) (*big.Int, error) {
	data := bucket.Get(key)
	if data == nil {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return nil, fmt.Errorf("voucherstore: corrupt balance %q", data)
	}
	return amount, nil
}

func writeBalance(bucket *bolt.Bucket, key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return bucket.Delete(key)
	}
	return bucket.Put(key, []byte(amount.String()))
}

func addBalance(bucket *bolt.Bucket, key []byte, amount *big.Int) error {
	current, err := readBalance(bucket, key)
	if err != nil {
		return err
	}
	return writeBalance(bucket, key, current.Add(current, amount))
}

// LedgerCredit adds to the owed balance for a party and asset.
func (t *stateTx) LedgerCredit(asset string, party [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("voucherstore: invalid credit amount")
	}
	return addBalance(t.tx.Bucket(bucketOwed), balanceKey(asset, party), amount)
}

// LedgerBalance returns the owed balance for a party and asset.
func (t *stateTx) LedgerBalance(asset string, party [20]byte) (*big.Int, error) {
	return readBalance(t.tx.Bucket(bucketOwed), balanceKey(asset, party))
}

// LedgerDebitAll atomically zeroes the owed balance, parks it as pending and
// returns the parked amount.
func (t *stateTx) LedgerDebitAll(asset string, party [20]byte) (*big.Int, error) {
	key := balanceKey(asset, party)
	owed := t.tx.Bucket(bucketOwed)
	current, err := readBalance(owed, key)
	if err != nil {
		return nil, err
	}
	if err := writeBalance(owed, key, big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := addBalance(t.tx.Bucket(bucketPending), key, current); err != nil {
		return nil, err
	}
	return current, nil
}

// LedgerSettle clears the pending amount after a successful transfer.
func (t *stateTx) LedgerSettle(asset string, party [20]byte) error {
	return t.tx.Bucket(bucketPending).Delete(balanceKey(asset, party))
}

// LedgerRestore moves the pending amount back to owed after a failed transfer.
func (t *stateTx) LedgerRestore(asset string, party [20]byte) error {
	key := balanceKey(asset, party)
	pending := t.tx.Bucket(bucketPending)
	amount, err := readBalance(pending, key)
	if err != nil {
		return err
	}
	if err := pending.Delete(key); err != nil {
		return err
	}
	return addBalance(t.tx.Bucket(bucketOwed), key, amount)
}

// LockedAdd accumulates a party's pre-finalization deposit for an asset.
func (t *stateTx) LockedAdd(asset string, party [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("voucherstore: invalid lock amount")
	}
	return addBalance(t.tx.Bucket(bucketLocked), balanceKey(asset, party), amount)
}

// LockedSub releases part of a party's locked deposits.
func (t *stateTx) LockedSub(asset string, party [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("voucherstore: invalid unlock amount")
	}
	key := balanceKey(asset, party)
	locked := t.tx.Bucket(bucketLocked)
	current, err := readBalance(locked, key)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("voucherstore: locked balance underflow")
	}
	return writeBalance(locked, key, current.Sub(current, amount))
}

// LockedBalance returns a party's total locked deposits for an asset.
func (t *stateTx) LockedBalance(asset string, party [20]byte) (*big.Int, error) {
	return readBalance(t.tx.Bucket(bucketLocked), balanceKey(asset, party))
}

// DrainMarked reports whether the party already used the emergency drain for
// the asset.
func (t *stateTx) DrainMarked(asset string, party [20]byte) (bool, error) {
	return t.tx.Bucket(bucketDrained).Get(balanceKey(asset, party)) != nil, nil
}

// MarkDrained records that the party consumed its emergency drain for the
// asset.
func (t *stateTx) MarkDrained(asset string, party [20]byte) error {
	return t.tx.Bucket(bucketDrained).Put(balanceKey(asset, party), []byte{0x01})
}

// The Store methods below delegate to a transaction-scoped state so single
// calls keep their one-transaction guarantee.

func (s *Store) VoucherPut(v *voucher.Voucher) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&stateTx{tx: tx}).VoucherPut(v)
	})
}

func (s *Store) VoucherGet(id [32]byte) (*voucher.Voucher, bool) {
	var (
		v  *voucher.Voucher
		ok bool
	)
	_ = s.db.View(func(tx *bolt.Tx) error {
		v, ok = (&stateTx{tx: tx}).VoucherGet(id)
		return nil
	})
	return v, ok
}

func (s *Store) LedgerCredit(asset string, party [20]byte, amount *big.Int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&stateTx{tx: tx}).LedgerCredit(asset, party, amount)
	})
}

func (s *Store) LedgerBalance(asset string, party [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := s.db.View(func(tx *bolt.Tx) error {
		read, err := (&stateTx{tx: tx}).LedgerBalance(asset, party)
		if err != nil {
			return err
		}
		amount = read
		return nil
	})
	return amount, err
}

func (s *Store) LedgerDebitAll(asset string, party [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := s.db.Update(func(tx *bolt.Tx) error {
		debited, err := (&stateTx{tx: tx}).LedgerDebitAll(asset, party)
		if err != nil {
			return err
		}
		amount = debited
		return nil
	})
	return amount, err
}

func (s *Store) LedgerSettle(asset string, party [20]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&stateTx{tx: tx}).LedgerSettle(asset, party)
	})
}

func (s *Store) LedgerRestore(asset string, party [20]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&stateTx{tx: tx}).LedgerRestore(asset, party)
	})
}

func (s *Store) LockedAdd(asset string, party [20]byte, amount *big.Int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&stateTx{tx: tx}).LockedAdd(asset, party, amount)
	})
}

func (s *Store) LockedSub(asset string, party [20]byte, amount *big.Int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&stateTx{tx: tx}).LockedSub(asset, party, amount)
	})
}

func (s *Store) LockedBalance(asset string, party [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := s.db.View(func(tx *bolt.Tx) error {
		read, err := (&stateTx{tx: tx}).LockedBalance(asset, party)
		if err != nil {
			return err
		}
		amount = read
		return nil
	})
	return amount, err
}

func (s *Store) DrainMarked(asset string, party [20]byte) (bool, error) {
	var marked bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := (&stateTx{tx: tx}).DrainMarked(asset, party)
		if err != nil {
			return err
		}
		marked = found
		return nil
	})
	return marked, err
}

func (s *Store) MarkDrained(asset string, party [20]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&stateTx{tx: tx}).MarkDrained(asset, party)
	})
}
