package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"stakevault/native/staking"
	"stakevault/storage"
)

var (
	ErrInvalidAmount       = errors.New("token: invalid amount")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrSupplyOverflow      = errors.New("token: supply overflow")
	ErrCustodyAccount      = errors.New("token: custody address cannot stake")
)

var (
	balancePrefix = []byte("token/balance/")
	supplyKey     = []byte("token/supply")
)

// Bank is the fungible principal token. Balances live in the shared key/value
// database so a persisted ledger and its token balances reopen together.
type Bank struct {
	mu     sync.Mutex
	db     storage.Database
	symbol string
}

// NewBank returns a bank for symbol backed by db. A nil db selects an
// in-memory store.
func NewBank(db storage.Database, symbol string) *Bank {
	if db == nil {
		db = storage.NewMemDB()
	}
	return &Bank{db: db, symbol: symbol}
}

// Symbol returns the token ticker.
func (b *Bank) Symbol() string { return b.symbol }

// Mint credits amount to the recipient out of thin air. It backs the faucet
// used by simulations and tests.
func (b *Bank) Mint(to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	supply, err := b.load(supplyKey)
	if err != nil {
		return err
	}
	newSupply, err := addChecked(supply, amount)
	if err != nil {
		return err
	}
	balance, err := b.load(balanceKey(to))
	if err != nil {
		return err
	}
	newBalance, err := addChecked(balance, amount)
	if err != nil {
		return err
	}
	if err := b.store(balanceKey(to), newBalance); err != nil {
		return err
	}
	if err := b.store(supplyKey, newSupply); err != nil {
		if restoreErr := b.store(balanceKey(to), balance); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("token: rollback mint: %w", restoreErr))
		}
		return err
	}
	return nil
}

// BalanceOf returns the balance held by addr.
func (b *Bank) BalanceOf(addr [20]byte) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(balanceKey(addr))
}

// TotalSupply returns the amount minted so far.
func (b *Bank) TotalSupply() (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(supplyKey)
}

// Transfer moves amount from one holder to another. Either both balances
// change or neither does.
func (b *Bank) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if from == to {
		balance, err := b.load(balanceKey(from))
		if err != nil {
			return err
		}
		if balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		return nil
	}
	fromBalance, err := b.load(balanceKey(from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	toBalance, err := b.load(balanceKey(to))
	if err != nil {
		return err
	}
	credited, err := addChecked(toBalance, amount)
	if err != nil {
		return err
	}
	debited := new(big.Int).Sub(fromBalance, amount)

	if err := b.store(balanceKey(from), debited); err != nil {
		return err
	}
	if err := b.store(balanceKey(to), credited); err != nil {
		if restoreErr := b.store(balanceKey(from), fromBalance); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("token: rollback sender: %w", restoreErr))
		}
		return err
	}
	return nil
}

// Vault returns the principal-token adapter that moves funds between holders
// and the custody address.
func (b *Bank) Vault(custody [20]byte) *Vault {
	return &Vault{bank: b, custody: custody}
}

func (b *Bank) load(key []byte) (*big.Int, error) {
	data, err := b.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("token: load balance: %w", err)
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, fmt.Errorf("token: decode balance: %w", err)
	}
	return value, nil
}

func (b *Bank) store(key []byte, value *big.Int) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("token: encode balance: %w", err)
	}
	if err := b.db.Put(key, encoded); err != nil {
		return fmt.Errorf("token: store balance: %w", err)
	}
	return nil
}

func balanceKey(addr [20]byte) []byte {
	key := make([]byte, 0, len(balancePrefix)+len(addr))
	key = append(key, balancePrefix...)
	return append(key, addr[:]...)
}

func addChecked(a, b *big.Int) (*big.Int, error) {
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrSupplyOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrSupplyOverflow
	}
	sum, carry := new(uint256.Int).AddOverflow(x, y)
	if carry {
		return nil, ErrSupplyOverflow
	}
	return sum.ToBig(), nil
}

// Vault adapts the bank to the ledger's principal token contract. Deposits
// move funds into the custody address and payouts move them back out, so the
// custody balance must also cover reward payouts.
type Vault struct {
	bank    *Bank
	custody [20]byte
}

var _ staking.PrincipalToken = (*Vault)(nil)

// Address returns the custody address holding staked principal.
func (v *Vault) Address() [20]byte { return v.custody }

// TransferIn moves amount from the depositor into custody. The custody
// address itself may not deposit since nothing would be locked.
func (v *Vault) TransferIn(from [20]byte, amount *big.Int) error {
	if from == v.custody {
		return ErrCustodyAccount
	}
	return v.bank.Transfer(from, v.custody, amount)
}

// TransferOut pays amount from custody to the recipient.
func (v *Vault) TransferOut(to [20]byte, amount *big.Int) error {
	return v.bank.Transfer(v.custody, to, amount)
}
