package staking

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"stakevault/storage"
)

var accountPrefix = []byte("staking/account/")

// accountEntry is the unit of persistence: the public record plus the
// issuer's book-keeping for the same account.
type accountEntry struct {
	Record *DepositRecord
	Issuer issuerState
}

func (e *accountEntry) clone() *accountEntry {
	return &accountEntry{Record: e.Record.Clone(), Issuer: e.Issuer}
}

type storedEntry struct {
	Sequence       uint64
	Principal      *big.Int
	AccruedReward  *big.Int
	LastCheckpoint uint64
	LockAnchor     uint64
	NFTCheckpoint  uint64
	Credential     uint64
	APR            uint64
	LastMinted     uint64
	Spent          bool
}

func newStoredEntry(e *accountEntry) *storedEntry {
	rec := e.Record
	if rec == nil {
		rec = newRecord(0)
	}
	return &storedEntry{
		Sequence:       rec.Sequence,
		Principal:      cloneBigInt(rec.Principal),
		AccruedReward:  cloneBigInt(rec.AccruedReward),
		LastCheckpoint: rec.LastCheckpoint,
		LockAnchor:     rec.LockAnchor,
		NFTCheckpoint:  rec.NFTCheckpoint,
		Credential:     uint64(rec.Credential),
		APR:            rec.APR,
		LastMinted:     uint64(e.Issuer.LastMinted),
		Spent:          e.Issuer.Spent,
	}
}

func (s *storedEntry) toEntry() *accountEntry {
	return &accountEntry{
		Record: &DepositRecord{
			Sequence:       s.Sequence,
			Principal:      cloneBigInt(s.Principal),
			AccruedReward:  cloneBigInt(s.AccruedReward),
			LastCheckpoint: s.LastCheckpoint,
			LockAnchor:     s.LockAnchor,
			NFTCheckpoint:  s.NFTCheckpoint,
			Credential:     CredentialID(s.Credential),
			APR:            s.APR,
		},
		Issuer: issuerState{
			LastMinted: CredentialID(s.LastMinted),
			Spent:      s.Spent,
		},
	}
}

// recordTable is the authoritative account table. Every read decodes a fresh
// copy and every write replaces a whole entry under a single key, so readers
// never share memory with writers.
type recordTable struct {
	db storage.Database
}

func accountKey(addr [20]byte) []byte {
	key := make([]byte, 0, len(accountPrefix)+len(addr))
	key = append(key, accountPrefix...)
	return append(key, addr[:]...)
}

func (t *recordTable) get(addr [20]byte) (*accountEntry, bool, error) {
	data, err := t.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("staking: load account: %w", err)
	}
	stored := new(storedEntry)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("staking: decode account: %w", err)
	}
	return stored.toEntry(), true, nil
}

func (t *recordTable) put(addr [20]byte, entry *accountEntry) error {
	encoded, err := rlp.EncodeToBytes(newStoredEntry(entry))
	if err != nil {
		return fmt.Errorf("staking: encode account: %w", err)
	}
	if err := t.db.Put(accountKey(addr), encoded); err != nil {
		return fmt.Errorf("staking: store account: %w", err)
	}
	return nil
}

func (t *recordTable) delete(addr [20]byte) error {
	if err := t.db.Delete(accountKey(addr)); err != nil {
		return fmt.Errorf("staking: delete account: %w", err)
	}
	return nil
}

func (t *recordTable) accounts() ([][20]byte, error) {
	keys, err := t.db.Keys(accountPrefix)
	if err != nil {
		return nil, fmt.Errorf("staking: list accounts: %w", err)
	}
	out := make([][20]byte, 0, len(keys))
	for _, key := range keys {
		if len(key) != len(accountPrefix)+20 {
			continue
		}
		var addr [20]byte
		copy(addr[:], key[len(accountPrefix):])
		out = append(out, addr)
	}
	return out, nil
}
