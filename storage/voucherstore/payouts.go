package voucherstore

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	bolt "go.etcd.io/bbolt"
)

// payoutRecord is one journal entry. The journal is the settlement interface
// for deployments without an on-chain vault: an external worker reads the
// entries and performs the actual transfers.
type payoutRecord struct {
	Asset      string `json:"asset"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
	RecordedAt int64  `json:"recordedAt"`
}

// TransferOut appends a payout entry to the journal. It implements
// voucher.Transferor so the store can act as the engine's settlement sink.
func (s *Store) TransferOut(asset string, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("voucherstore: invalid payout amount")
	}
	data, err := json.Marshal(payoutRecord{
		Asset:      asset,
		To:         hex.EncodeToString(to[:]),
		Amount:     amount.String(),
		RecordedAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketPayouts)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, data)
	})
}

// PayoutTotal sums the journalled payouts for a party and asset.
func (s *Store) PayoutTotal(asset string, party [20]byte) (*big.Int, error) {
	to := hex.EncodeToString(party[:])
	total := big.NewInt(0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPayouts).ForEach(func(_, data []byte) error {
			var record payoutRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			if record.Asset != asset || record.To != to {
				return nil
			}
			amount, ok := new(big.Int).SetString(record.Amount, 10)
			if !ok {
				return fmt.Errorf("voucherstore: corrupt payout amount %q", record.Amount)
			}
			total.Add(total, amount)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}
