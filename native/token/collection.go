package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"stakevault/native/staking"
	"stakevault/storage"
)

var (
	ErrUnknownCredential = errors.New("token: unknown credential")
	ErrNotHolder         = errors.New("token: sender does not hold credential")
)

var (
	ownerPrefix = []byte("credential/owner/")
	counterKey  = []byte("credential/next")
)

// Collection is the non-fungible bonus credential token. Identifiers are
// assigned sequentially starting at one.
type Collection struct {
	mu   sync.Mutex
	db   storage.Database
	name string
}

// NewCollection returns a collection backed by db. A nil db selects an
// in-memory store.
func NewCollection(db storage.Database, name string) *Collection {
	if db == nil {
		db = storage.NewMemDB()
	}
	return &Collection{db: db, name: name}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Mint creates a new credential owned by owner.
func (c *Collection) Mint(owner [20]byte) (staking.CredentialID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, err := c.lastID()
	if err != nil {
		return 0, err
	}
	id := last + 1
	encoded, err := rlp.EncodeToBytes(uint64(id))
	if err != nil {
		return 0, fmt.Errorf("token: encode counter: %w", err)
	}
	if err := c.db.Put(counterKey, encoded); err != nil {
		return 0, fmt.Errorf("token: store counter: %w", err)
	}
	if err := c.db.Put(ownerKey(id), owner[:]); err != nil {
		return 0, fmt.Errorf("token: store owner: %w", err)
	}
	return id, nil
}

// OwnerOf returns the current holder of id.
func (c *Collection) OwnerOf(id staking.CredentialID) ([20]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownerOf(id)
}

// Transfer moves id from one holder to another.
func (c *Collection) Transfer(from, to [20]byte, id staking.CredentialID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, err := c.ownerOf(id)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrNotHolder
	}
	if err := c.db.Put(ownerKey(id), to[:]); err != nil {
		return fmt.Errorf("token: store owner: %w", err)
	}
	return nil
}

// BalanceOf returns the number of credentials held by owner.
func (c *Collection) BalanceOf(owner [20]byte) (int, error) {
	ids, err := c.TokensOf(owner)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// TokensOf lists the credentials held by owner in ascending order.
func (c *Collection) TokensOf(owner [20]byte) ([]staking.CredentialID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.db.Keys(ownerPrefix)
	if err != nil {
		return nil, fmt.Errorf("token: list credentials: %w", err)
	}
	ids := make([]staking.CredentialID, 0)
	for _, key := range keys {
		if len(key) != len(ownerPrefix)+8 {
			continue
		}
		id := staking.CredentialID(binary.BigEndian.Uint64(key[len(ownerPrefix):]))
		holder, err := c.ownerOf(id)
		if err != nil {
			return nil, err
		}
		if holder == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Custody returns the adapter the ledger uses to mint credentials and hold
// them at the vault address.
func (c *Collection) Custody(vault [20]byte) *Custody {
	return &Custody{collection: c, vault: vault}
}

func (c *Collection) ownerOf(id staking.CredentialID) ([20]byte, error) {
	var owner [20]byte
	data, err := c.db.Get(ownerKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return owner, ErrUnknownCredential
	}
	if err != nil {
		return owner, fmt.Errorf("token: load owner: %w", err)
	}
	if len(data) != len(owner) {
		return owner, fmt.Errorf("token: corrupt owner entry for credential %d", id)
	}
	copy(owner[:], data)
	return owner, nil
}

func (c *Collection) lastID() (staking.CredentialID, error) {
	data, err := c.db.Get(counterKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("token: load counter: %w", err)
	}
	var last uint64
	if err := rlp.DecodeBytes(data, &last); err != nil {
		return 0, fmt.Errorf("token: decode counter: %w", err)
	}
	return staking.CredentialID(last), nil
}

func ownerKey(id staking.CredentialID) []byte {
	key := make([]byte, len(ownerPrefix)+8)
	copy(key, ownerPrefix)
	binary.BigEndian.PutUint64(key[len(ownerPrefix):], uint64(id))
	return key
}

// Custody satisfies staking.CredentialCustody on top of a collection.
type Custody struct {
	collection *Collection
	vault      [20]byte
}

var _ staking.CredentialCustody = (*Custody)(nil)

// Mint issues a fresh credential directly to owner.
func (c *Custody) Mint(owner [20]byte) (staking.CredentialID, error) {
	return c.collection.Mint(owner)
}

// TransferIn moves id from owner into the vault.
func (c *Custody) TransferIn(owner [20]byte, id staking.CredentialID) error {
	return c.collection.Transfer(owner, c.vault, id)
}

// TransferOut returns id from the vault to owner.
func (c *Custody) TransferOut(owner [20]byte, id staking.CredentialID) error {
	return c.collection.Transfer(c.vault, owner, id)
}

// OwnerOf reports the current holder of id.
func (c *Custody) OwnerOf(id staking.CredentialID) ([20]byte, error) {
	return c.collection.OwnerOf(id)
}
