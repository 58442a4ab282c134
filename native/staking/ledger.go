package staking

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"stakevault/core/events"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
	"stakevault/storage"
)

// Observer receives operational telemetry from the ledger.
type Observer interface {
	ObserveOperation(operation string, duration time.Duration, err error)
	CredentialMinted()
	SetPrincipalLocked(total *big.Int)
}

// Ledger is the sole authority over staking positions. It owns the account
// table, banks rewards through the reward engine and asks the issuer whether
// a deposit earns a bonus credential.
type Ledger struct {
	paramsMu sync.RWMutex
	params   Params

	table     *recordTable
	locks     accountLocks
	principal PrincipalToken
	issuer    *Issuer

	totalMu     sync.Mutex
	totalLocked *big.Int

	emitter  events.Emitter
	nowFn    func() uint64
	pauses   nativecommon.PauseView
	logger   *slog.Logger
	observer Observer
}

// NewLedger constructs a ledger over db. A nil db selects an in-memory table.
func NewLedger(params Params, principal PrincipalToken, custody CredentialCustody, db storage.Database) (*Ledger, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if principal == nil || custody == nil {
		return nil, ErrNotConfigured
	}
	if db == nil {
		db = storage.NewMemDB()
	}
	l := &Ledger{
		params:    params.Clone(),
		table:     &recordTable{db: db},
		principal: principal,
		issuer:    NewIssuer(custody, params.NFTThreshold, params.RemintOnRecross),
		emitter:   events.NoopEmitter{},
		nowFn:     func() uint64 { return uint64(time.Now().Unix()) },
	}
	total, err := l.scanTotalLocked()
	if err != nil {
		return nil, err
	}
	l.totalLocked = total
	return l, nil
}

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the clock. Primarily intended for tests to provide
// deterministic timestamps.
func (l *Ledger) SetNowFunc(now func() uint64) {
	if now == nil {
		l.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	l.nowFn = now
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) { l.pauses = p }

func (l *Ledger) SetLogger(logger *slog.Logger) { l.logger = logger }

// SetObserver wires operational telemetry. The current locked principal is
// published immediately.
func (l *Ledger) SetObserver(o Observer) {
	l.observer = o
	if o != nil {
		o.SetPrincipalLocked(l.TotalLocked())
	}
}

// Params returns a copy of the active parameters.
func (l *Ledger) Params() Params {
	l.paramsMu.RLock()
	defer l.paramsMu.RUnlock()
	return l.params.Clone()
}

// SetBaseAPR changes the base rate. Stored rates are left untouched; the new
// rate applies to records created afterwards and to every later rate
// recomputation.
func (l *Ledger) SetBaseAPR(apr uint64) error {
	if apr > MaxAPR {
		return fmt.Errorf("%w: base APR %d exceeds %d", ErrInvalidParams, apr, MaxAPR)
	}
	l.paramsMu.Lock()
	previous := l.params.BaseAPR
	l.params.BaseAPR = apr
	l.paramsMu.Unlock()
	l.log().Info("staking base APR updated", "previous", previous, "apr", apr)
	return nil
}

// TotalLocked returns the principal currently staked across all accounts.
func (l *Ledger) TotalLocked() *big.Int {
	l.totalMu.Lock()
	defer l.totalMu.Unlock()
	return cloneBigInt(l.totalLocked)
}

// Deposit stakes amount for account. Pending reward is banked first, the lock
// clock restarts for the whole balance and a credential is minted when the
// new principal first reaches the threshold.
func (l *Ledger) Deposit(account [20]byte, amount *big.Int) (err error) {
	start := time.Now()
	defer func() { l.observe("deposit", start, err) }()

	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := checkRange(amount); err != nil {
		return err
	}

	unlock := l.locks.lock(account)
	defer unlock()

	now := l.now()
	params := l.Params()
	entry, existed, err := l.load(account, params)
	if err != nil {
		return err
	}
	previous := entry.clone()
	rec := entry.Record
	if err := l.bankChecked(account, rec, now); err != nil {
		return err
	}
	principal, err := checkedAdd(rec.Principal, amount)
	if err != nil {
		return err
	}
	rec.Principal = principal
	rec.Sequence++
	rec.LockAnchor = now
	crossed := l.issuer.reserve(&entry.Issuer, principal)

	if err := l.principal.TransferIn(account, amount); err != nil {
		return fmt.Errorf("staking: transfer in: %w", err)
	}
	if err := l.table.put(account, entry); err != nil {
		l.compensate(account, "refund deposit", l.principal.TransferOut(account, amount))
		return err
	}
	var minted CredentialID
	if crossed {
		minted, err = l.issuer.mint(account, &entry.Issuer)
		if err != nil {
			l.compensate(account, "restore record", l.restore(account, previous, existed))
			l.compensate(account, "refund deposit", l.principal.TransferOut(account, amount))
			return err
		}
		if err := l.table.put(account, entry); err != nil {
			// The spent flag is already durable; only the minted id is stale.
			l.compensate(account, "record minted credential", err)
		}
	}
	l.adjustLocked(amount, nil)

	l.emit(LedgerEvent{Account: account, Kind: OpDeposit, Amount: cloneBigInt(amount), Timestamp: now, Sequence: rec.Sequence})
	if crossed {
		l.log().Info("staking credential minted",
			"addr", crypto.FromRaw(crypto.StakePrefix, account).String(),
			"credential", uint64(minted),
			"principal", principal.String(),
			"newAccount", !existed)
		if l.observer != nil {
			l.observer.CredentialMinted()
		}
		l.emit(LedgerEvent{Account: account, Kind: OpCredentialMinted, Credential: minted, Timestamp: now, Sequence: rec.Sequence})
	}
	return nil
}

// restore puts back the entry read at the start of an operation, removing
// the record entirely when the account did not exist before.
func (l *Ledger) restore(account [20]byte, previous *accountEntry, existed bool) error {
	if !existed {
		return l.table.delete(account)
	}
	return l.table.put(account, previous)
}

// Withdraw releases the full principal plus banked reward once the lock
// period has elapsed.
func (l *Ledger) Withdraw(account [20]byte) (receipt *WithdrawReceipt, err error) {
	start := time.Now()
	defer func() { l.observe("withdraw", start, err) }()

	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}

	unlock := l.locks.lock(account)
	defer unlock()

	now := l.now()
	params := l.Params()
	entry, existed, err := l.load(account, params)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, ErrNoPrincipal
	}
	rec := entry.Record
	if err := l.checkClock(account, rec, now); err != nil {
		return nil, err
	}
	if rec.Principal.Sign() == 0 {
		return nil, ErrNoPrincipal
	}
	if now < rec.UnlockAt(params.LockPeriod) {
		return nil, ErrStillLocked
	}
	if err := l.bankChecked(account, rec, now); err != nil {
		return nil, err
	}
	principal := cloneBigInt(rec.Principal)
	reward := cloneBigInt(rec.AccruedReward)
	total, err := checkedAdd(principal, reward)
	if err != nil {
		return nil, err
	}
	rec.Principal = big.NewInt(0)
	rec.AccruedReward = big.NewInt(0)
	rec.LockAnchor = now
	l.issuer.observeBalance(&entry.Issuer, rec.Principal)

	if err := l.principal.TransferOut(account, total); err != nil {
		return nil, fmt.Errorf("staking: transfer out: %w", err)
	}
	if err := l.table.put(account, entry); err != nil {
		l.compensate(account, "reclaim withdrawal", l.principal.TransferIn(account, total))
		return nil, err
	}
	l.adjustLocked(nil, principal)

	l.emit(LedgerEvent{Account: account, Kind: OpWithdraw, Amount: cloneBigInt(total), Timestamp: now, Sequence: rec.Sequence})
	return &WithdrawReceipt{
		Principal: principal,
		Reward:    reward,
		Total:     total,
		Timestamp: now,
		Sequence:  rec.Sequence,
	}, nil
}

// WithdrawAmount releases part of the principal once the lock period has
// elapsed. Reward is banked but stays in the ledger until claimed. Whether the
// lock clock restarts follows Params.ResetLockOnPartialWithdraw.
func (l *Ledger) WithdrawAmount(account [20]byte, amount *big.Int) (receipt *WithdrawReceipt, err error) {
	start := time.Now()
	defer func() { l.observe("withdraw_amount", start, err) }()

	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	unlock := l.locks.lock(account)
	defer unlock()

	now := l.now()
	params := l.Params()
	entry, existed, err := l.load(account, params)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, ErrNoPrincipal
	}
	rec := entry.Record
	if err := l.checkClock(account, rec, now); err != nil {
		return nil, err
	}
	if rec.Principal.Sign() == 0 {
		return nil, ErrNoPrincipal
	}
	if now < rec.UnlockAt(params.LockPeriod) {
		return nil, ErrStillLocked
	}
	if amount.Cmp(rec.Principal) > 0 {
		return nil, ErrInvalidAmount
	}
	if err := l.bankChecked(account, rec, now); err != nil {
		return nil, err
	}
	remaining, err := checkedSub(rec.Principal, amount)
	if err != nil {
		return nil, err
	}
	rec.Principal = remaining
	if params.ResetLockOnPartialWithdraw {
		rec.LockAnchor = now
	}
	l.issuer.observeBalance(&entry.Issuer, remaining)

	paid := cloneBigInt(amount)
	if err := l.principal.TransferOut(account, paid); err != nil {
		return nil, fmt.Errorf("staking: transfer out: %w", err)
	}
	if err := l.table.put(account, entry); err != nil {
		l.compensate(account, "reclaim withdrawal", l.principal.TransferIn(account, paid))
		return nil, err
	}
	l.adjustLocked(nil, paid)

	l.emit(LedgerEvent{Account: account, Kind: OpWithdraw, Amount: cloneBigInt(paid), Timestamp: now, Sequence: rec.Sequence})
	return &WithdrawReceipt{
		Principal: paid,
		Reward:    big.NewInt(0),
		Total:     cloneBigInt(paid),
		Timestamp: now,
		Sequence:  rec.Sequence,
	}, nil
}

// ClaimReward pays out all banked and pending reward. It ignores the lock
// period and leaves principal untouched. A second claim in the same second
// returns zero.
func (l *Ledger) ClaimReward(account [20]byte) (amount *big.Int, err error) {
	start := time.Now()
	defer func() { l.observe("claim", start, err) }()

	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}

	unlock := l.locks.lock(account)
	defer unlock()

	now := l.now()
	params := l.Params()
	entry, existed, err := l.load(account, params)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, ErrNoPrincipal
	}
	rec := entry.Record
	if err := l.bankChecked(account, rec, now); err != nil {
		return nil, err
	}
	if rec.Principal.Sign() == 0 && rec.AccruedReward.Sign() == 0 {
		return nil, ErrNoPrincipal
	}
	payout := cloneBigInt(rec.AccruedReward)
	rec.AccruedReward = big.NewInt(0)
	rec.LockAnchor = now

	if payout.Sign() > 0 {
		if err := l.principal.TransferOut(account, payout); err != nil {
			return nil, fmt.Errorf("staking: transfer out: %w", err)
		}
	}
	if err := l.table.put(account, entry); err != nil {
		if payout.Sign() > 0 {
			l.compensate(account, "reclaim reward", l.principal.TransferIn(account, payout))
		}
		return nil, err
	}

	l.emit(LedgerEvent{Account: account, Kind: OpClaimReward, Amount: cloneBigInt(payout), Timestamp: now, Sequence: rec.Sequence})
	return payout, nil
}

// DepositCredential places a credential owned by account into custody and
// raises the account's rate by the bonus APR. Reward up to now is banked at
// the previous rate.
func (l *Ledger) DepositCredential(account [20]byte, id CredentialID) (err error) {
	start := time.Now()
	defer func() { l.observe("deposit_credential", start, err) }()

	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}

	unlock := l.locks.lock(account)
	defer unlock()

	now := l.now()
	params := l.Params()
	entry, _, err := l.load(account, params)
	if err != nil {
		return err
	}
	rec := entry.Record
	if err := l.bankChecked(account, rec, now); err != nil {
		return err
	}
	if err := l.issuer.DepositCredential(account, id, rec, now); err != nil {
		return err
	}
	rec.APR = params.EffectiveAPR(true)
	rec.LockAnchor = now

	if err := l.table.put(account, entry); err != nil {
		l.compensate(account, "return credential", l.issuer.custody.TransferOut(account, id))
		return err
	}

	l.emit(LedgerEvent{Account: account, Kind: OpDepositCredential, Credential: id, Timestamp: now, Sequence: rec.Sequence})
	return nil
}

// WithdrawCredential returns the custodied credential to account and drops
// its rate back to base. The lock period does not apply.
func (l *Ledger) WithdrawCredential(account [20]byte) (id CredentialID, err error) {
	start := time.Now()
	defer func() { l.observe("withdraw_credential", start, err) }()

	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return 0, err
	}

	unlock := l.locks.lock(account)
	defer unlock()

	now := l.now()
	params := l.Params()
	entry, existed, err := l.load(account, params)
	if err != nil {
		return 0, err
	}
	if !existed || !entry.Record.HasCredential() {
		return 0, ErrNoCredentialDeposited
	}
	rec := entry.Record
	if err := l.bankChecked(account, rec, now); err != nil {
		return 0, err
	}
	id, err = l.issuer.WithdrawCredential(account, rec)
	if err != nil {
		return 0, err
	}
	rec.APR = params.EffectiveAPR(false)
	rec.LockAnchor = now

	if err := l.table.put(account, entry); err != nil {
		l.compensate(account, "reclaim credential", l.issuer.custody.TransferIn(account, id))
		return 0, err
	}

	l.emit(LedgerEvent{Account: account, Kind: OpWithdrawCredential, Credential: id, Timestamp: now, Sequence: rec.Sequence})
	return id, nil
}

// BalanceOf returns a snapshot of the account's record. Unknown accounts
// yield an empty record at the current base rate.
func (l *Ledger) BalanceOf(account [20]byte) (*DepositRecord, error) {
	entry, _, err := l.load(account, l.Params())
	if err != nil {
		return nil, err
	}
	return entry.Record, nil
}

// PendingReward returns banked reward plus reward accrued up to now without
// mutating anything.
func (l *Ledger) PendingReward(account [20]byte) (*big.Int, error) {
	rec, err := l.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	return PendingReward(rec, l.now())
}

// APROf returns the effective rate of account.
func (l *Ledger) APROf(account [20]byte) (uint64, error) {
	rec, err := l.BalanceOf(account)
	if err != nil {
		return 0, err
	}
	return rec.APR, nil
}

// DepositedCredential returns the credential in custody for account.
func (l *Ledger) DepositedCredential(account [20]byte) (CredentialID, bool, error) {
	rec, err := l.BalanceOf(account)
	if err != nil {
		return 0, false, err
	}
	return rec.Credential, rec.HasCredential(), nil
}

// StateOf derives the lifecycle state of account at the current time.
func (l *Ledger) StateOf(account [20]byte) (AccountState, error) {
	rec, err := l.BalanceOf(account)
	if err != nil {
		return "", err
	}
	return StateOf(rec, l.now(), l.Params().LockPeriod), nil
}

// Accounts lists every account with a record.
func (l *Ledger) Accounts() ([][20]byte, error) {
	return l.table.accounts()
}

func (l *Ledger) load(account [20]byte, params Params) (*accountEntry, bool, error) {
	entry, ok, err := l.table.get(account)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &accountEntry{Record: newRecord(params.EffectiveAPR(false))}, false, nil
	}
	return entry, true, nil
}

func (l *Ledger) checkClock(account [20]byte, rec *DepositRecord, now uint64) error {
	if now >= rec.LastCheckpoint {
		return nil
	}
	l.log().Error("staking clock skew",
		"addr", crypto.FromRaw(crypto.StakePrefix, account).String(),
		"now", now,
		"lastCheckpoint", rec.LastCheckpoint)
	return ErrClockSkew
}

func (l *Ledger) bankChecked(account [20]byte, rec *DepositRecord, now uint64) error {
	if err := l.checkClock(account, rec, now); err != nil {
		return err
	}
	return bank(rec, now)
}

func (l *Ledger) compensate(account [20]byte, action string, err error) {
	if err == nil {
		return
	}
	l.log().Error("staking compensation failed",
		"addr", crypto.FromRaw(crypto.StakePrefix, account).String(),
		"action", action,
		"error", err)
}

func (l *Ledger) adjustLocked(add, sub *big.Int) {
	l.totalMu.Lock()
	if add != nil {
		l.totalLocked.Add(l.totalLocked, add)
	}
	if sub != nil {
		l.totalLocked.Sub(l.totalLocked, sub)
	}
	total := cloneBigInt(l.totalLocked)
	l.totalMu.Unlock()
	if l.observer != nil {
		l.observer.SetPrincipalLocked(total)
	}
}

func (l *Ledger) scanTotalLocked() (*big.Int, error) {
	accounts, err := l.table.accounts()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, addr := range accounts {
		entry, ok, err := l.table.get(addr)
		if err != nil {
			return nil, err
		}
		if ok {
			total.Add(total, entry.Record.Principal)
		}
	}
	return total, nil
}

func (l *Ledger) emit(evt LedgerEvent) {
	if l.emitter == nil {
		return
	}
	l.emitter.Emit(evt)
}

func (l *Ledger) observe(operation string, start time.Time, err error) {
	if l.observer == nil {
		return
	}
	l.observer.ObserveOperation(operation, time.Since(start), err)
}

func (l *Ledger) now() uint64 {
	if l.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return l.nowFn()
}

func (l *Ledger) log() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}
