// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
)

var (
	orderKeyPrefix = []byte("order/")
	countersKey    = []byte("counters")
)

func orderKey(hash common.Hash) []byte {
	return append(orderKeyPrefix, hash[:]...)
}

// commitOrder records an order status transition in the in-memory table
// and writes it through to the database together with the ledger
// counters, so a restart observes the status and the counters from the
// same commit point. StatusNonexistent removes the entry. The database
// write happens first: on failure the in-memory table is left untouched
// and the caller sees the error.
func (v *Vault) commitOrder(hash common.Hash, status OrderStatus) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.db != nil {
		if status == StatusNonexistent {
			if err := v.db.Delete(orderKey(hash)); err != nil {
				return fmt.Errorf("delete order %s: %w", hash, err)
			}
		} else {
			if err := v.db.Put(orderKey(hash), []byte{byte(status)}); err != nil {
				return fmt.Errorf("put order %s: %w", hash, err)
			}
		}
		if err := v.db.Put(countersKey, encodeCounters(v.ledger)); err != nil {
			return fmt.Errorf("put counters: %w", err)
		}
	}

	if status == StatusNonexistent {
		delete(v.orders, hash)
	} else {
		v.orders[hash] = status
	}
	return nil
}

// orderStatus resolves an order hash to its lifecycle status, falling
// back to the database for orders committed before a restart. Misses
// are not cached so the lookup stays read-only and safe under a shared
// lock.
func (v *Vault) orderStatus(hash common.Hash) (OrderStatus, error) {
	if status, ok := v.orders[hash]; ok {
		return status, nil
	}
	if v.db == nil {
		return StatusNonexistent, nil
	}

	raw, err := v.db.Get(orderKey(hash))
	if errors.Is(err, database.ErrNotFound) {
		return StatusNonexistent, nil
	}
	if err != nil {
		return StatusNonexistent, fmt.Errorf("get order %s: %w", hash, err)
	}
	if len(raw) != 1 || OrderStatus(raw[0]) > StatusReverted {
		return StatusNonexistent, fmt.Errorf("corrupt status record for order %s", hash)
	}
	return OrderStatus(raw[0]), nil
}

// storeCounters writes the ledger counters through to the database.
// Callers hold the operation guard, so the counters cannot move while
// they are being encoded.
func (v *Vault) storeCounters() error {
	if v.db == nil {
		return nil
	}
	if err := v.db.Put(countersKey, encodeCounters(v.ledger)); err != nil {
		return fmt.Errorf("put counters: %w", err)
	}
	return nil
}

// loadState restores the ledger counters from the database. A missing
// record means a fresh vault. Order statuses are not preloaded; they
// are resolved lazily by orderStatus.
func (v *Vault) loadState() error {
	raw, err := v.db.Get(countersKey)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get counters: %w", err)
	}
	return decodeCounters(v.ledger, raw)
}

// Counter record layout, all integers big-endian:
//
//	32  totalStakedAssets
//	 4  rebalanceThreshold
//	 4x (32 collected | 32 claimed)   one pair per fee category
//	 4  reserved entry count
//	 nx (32 asset id | 32 amount)
const countersFixedLen = 32 + 4 + int(feeCategoryCount)*64 + 4

func encodeCounters(l *ledger) []byte {
	buf := make([]byte, 0, countersFixedLen+len(l.reserved)*64)
	buf = append(buf, bigTo32(l.totalStakedAssets)...)
	buf = binary.BigEndian.AppendUint32(buf, l.rebalanceThreshold)
	for i := range l.buckets {
		buf = append(buf, bigTo32(l.buckets[i].collected)...)
		buf = append(buf, bigTo32(l.buckets[i].claimed)...)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(l.reserved)))
	for asset, amount := range l.reserved {
		buf = append(buf, asset[:]...)
		buf = append(buf, bigTo32(amount)...)
	}
	return buf
}

func decodeCounters(l *ledger, raw []byte) error {
	if len(raw) < countersFixedLen {
		return fmt.Errorf("corrupt counters record: %d bytes", len(raw))
	}
	l.totalStakedAssets = new(big.Int).SetBytes(raw[:32])
	l.rebalanceThreshold = binary.BigEndian.Uint32(raw[32:36])
	off := 36
	for i := range l.buckets {
		l.buckets[i].collected = new(big.Int).SetBytes(raw[off : off+32])
		l.buckets[i].claimed = new(big.Int).SetBytes(raw[off+32 : off+64])
		off += 64
	}
	count := int(binary.BigEndian.Uint32(raw[off : off+4]))
	off += 4
	if len(raw) != off+count*64 {
		return fmt.Errorf("corrupt counters record: %d bytes, %d reserved entries", len(raw), count)
	}
	l.reserved = make(map[common.Hash]*big.Int, count)
	for i := 0; i < count; i++ {
		var asset common.Hash
		copy(asset[:], raw[off:off+32])
		l.reserved[asset] = new(big.Int).SetBytes(raw[off+32 : off+64])
		off += 64
	}
	return nil
}
