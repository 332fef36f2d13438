package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"risk-engine/internal/common"
	"risk-engine/internal/dataset"
)

// AddFraudSamples appends labeled transactions to the sample store.
func (s *Store) AddFraudSamples(recs []dataset.FraudRecord) error {
	return addSamples(s.db, common.FamilyFraud, recs)
}

// AddCreditSamples appends labeled credit requests to the sample store.
func (s *Store) AddCreditSamples(recs []dataset.CreditRecord) error {
	return addSamples(s.db, common.FamilyCredit, recs)
}

// FraudSamples returns every stored fraud sample in insertion order.
func (s *Store) FraudSamples(ctx context.Context) ([]dataset.FraudRecord, error) {
	return readSamples[dataset.FraudRecord](ctx, s.db, common.FamilyFraud)
}

// CreditSamples returns every stored credit sample in insertion order.
func (s *Store) CreditSamples(ctx context.Context) ([]dataset.CreditRecord, error) {
	return readSamples[dataset.CreditRecord](ctx, s.db, common.FamilyCredit)
}

// SampleCount reports how many samples are stored for family.
func (s *Store) SampleCount(family string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := sampleBucket(tx, family)
		if err != nil {
			return err
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func sampleBucket(tx *bbolt.Tx, family string) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(samplesBucket)).Bucket([]byte(family))
	if b == nil {
		return nil, fmt.Errorf("unknown family %q", family)
	}
	return b, nil
}

func addSamples[T any](db *bbolt.DB, family string, recs []T) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b, err := sampleBucket(tx, family)
		if err != nil {
			return err
		}
		for _, r := range recs {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal sample: %w", err)
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func readSamples[T any](ctx context.Context, db *bbolt.DB, family string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []T
	err := db.View(func(tx *bbolt.Tx) error {
		b, err := sampleBucket(tx, family)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var r T
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to unmarshal sample %x: %w", k, err)
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}
