package staking

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"stakevault/storage"
)

var errMockTransfer = errors.New("mock: transfer rejected")

var vaultAddr = [20]byte{0xff}

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

type mockToken struct {
	mu       sync.Mutex
	held     map[[20]byte]*big.Int
	paid     map[[20]byte]*big.Int
	failIn   bool
	failOut  bool
	inCalls  int
	outCalls int
}

func newMockToken() *mockToken {
	return &mockToken{held: make(map[[20]byte]*big.Int), paid: make(map[[20]byte]*big.Int)}
}

func (m *mockToken) TransferIn(from [20]byte, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inCalls++
	if m.failIn {
		return errMockTransfer
	}
	m.add(m.held, from, amount)
	return nil
}

func (m *mockToken) TransferOut(to [20]byte, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outCalls++
	if m.failOut {
		return errMockTransfer
	}
	m.add(m.paid, to, amount)
	return nil
}

func (m *mockToken) add(book map[[20]byte]*big.Int, who [20]byte, amount *big.Int) {
	cur, ok := book[who]
	if !ok {
		cur = big.NewInt(0)
	}
	book[who] = new(big.Int).Add(cur, amount)
}

func (m *mockToken) paidTo(who [20]byte) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.paid[who]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// net returns what who has received minus what it has paid in.
func (m *mockToken) net(who [20]byte) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := big.NewInt(0)
	if v, ok := m.paid[who]; ok {
		out.Add(out, v)
	}
	if v, ok := m.held[who]; ok {
		out.Sub(out, v)
	}
	return out
}

type mockCustody struct {
	mu       sync.Mutex
	next     CredentialID
	owners   map[CredentialID][20]byte
	failMint bool
	failIn   bool
}

func newMockCustody() *mockCustody {
	return &mockCustody{owners: make(map[CredentialID][20]byte)}
}

func (m *mockCustody) Mint(owner [20]byte) (CredentialID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMint {
		return 0, errMockTransfer
	}
	m.next++
	m.owners[m.next] = owner
	return m.next, nil
}

func (m *mockCustody) TransferIn(owner [20]byte, id CredentialID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIn || m.owners[id] != owner {
		return errMockTransfer
	}
	m.owners[id] = vaultAddr
	return nil
}

func (m *mockCustody) TransferOut(owner [20]byte, id CredentialID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[id] != vaultAddr {
		return errMockTransfer
	}
	m.owners[id] = owner
	return nil
}

func (m *mockCustody) OwnerOf(id CredentialID) ([20]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[id]
	if !ok {
		return [20]byte{}, errMockTransfer
	}
	return owner, nil
}

type failingDB struct {
	*storage.MemDB
	failPut bool
}

func (f *failingDB) Put(key, value []byte) error {
	if f.failPut {
		return errors.New("mock: disk full")
	}
	return f.MemDB.Put(key, value)
}

type ledgerFixture struct {
	ledger  *Ledger
	token   *mockToken
	custody *mockCustody
	db      *failingDB
	now     uint64
}

func newFixture(t *testing.T, params Params) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		token:   newMockToken(),
		custody: newMockCustody(),
		db:      &failingDB{MemDB: storage.NewMemDB()},
	}
	ledger, err := NewLedger(params, f.token, f.custody, f.db)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ledger.SetNowFunc(func() uint64 { return f.now })
	f.ledger = ledger
	return f
}

func testParams() Params {
	params := DefaultParams()
	params.NFTThreshold = big.NewInt(1_000_000)
	return params
}
