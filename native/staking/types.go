package staking

import "math/big"

// CredentialID identifies a bonus credential. Zero means "none".
type CredentialID uint64

// DepositRecord is the per-account staking position. Records are created on
// the first interaction and never deleted; principal may settle to zero.
type DepositRecord struct {
	// Sequence counts deposits made by the account.
	Sequence uint64 `json:"sequence"`
	// Principal is the amount currently staked.
	Principal *big.Int `json:"principal"`
	// AccruedReward is reward banked at the last checkpoint and not yet
	// claimed.
	AccruedReward *big.Int `json:"accruedReward"`
	// LastCheckpoint is the unix time of the last reward recomputation.
	LastCheckpoint uint64 `json:"lastCheckpoint"`
	// LockAnchor is the unix time the lock period is measured from.
	LockAnchor uint64 `json:"lockAnchor"`
	// NFTCheckpoint is the unix time the held credential was deposited.
	// Only meaningful while Credential is non-zero.
	NFTCheckpoint uint64 `json:"nftCheckpoint"`
	// Credential is the credential currently held in custody for the
	// account.
	Credential CredentialID `json:"credential,omitempty"`
	// APR is the effective annual rate in whole percent.
	APR uint64 `json:"apr"`
}

// HasCredential reports whether a credential is in custody for the account.
func (r *DepositRecord) HasCredential() bool {
	return r != nil && r.Credential != 0
}

// UnlockAt returns the first unix time at which principal may be withdrawn.
func (r *DepositRecord) UnlockAt(lockPeriod uint64) uint64 {
	if r == nil {
		return 0
	}
	unlock := r.LockAnchor + lockPeriod
	if unlock < r.LockAnchor {
		return ^uint64(0)
	}
	return unlock
}

// Clone returns a deep copy of the record.
func (r *DepositRecord) Clone() *DepositRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Principal = cloneBigInt(r.Principal)
	clone.AccruedReward = cloneBigInt(r.AccruedReward)
	return &clone
}

func newRecord(apr uint64) *DepositRecord {
	return &DepositRecord{
		Principal:     big.NewInt(0),
		AccruedReward: big.NewInt(0),
		APR:           apr,
	}
}

// AccountState is the conceptual lifecycle position of an account. It is
// derived from a record and never stored.
type AccountState string

const (
	StateEmpty  AccountState = "empty"
	StateActive AccountState = "active"
	StateLocked AccountState = "locked"
	// StateClaimable has no principal but still holds banked reward, as
	// after a partial withdrawal of everything with reward left unclaimed.
	StateClaimable AccountState = "claimable"
)

// StateOf derives the lifecycle state of rec at now.
func StateOf(rec *DepositRecord, now, lockPeriod uint64) AccountState {
	if rec == nil || rec.Principal == nil || rec.Principal.Sign() == 0 {
		if rec != nil && rec.AccruedReward != nil && rec.AccruedReward.Sign() > 0 {
			return StateClaimable
		}
		return StateEmpty
	}
	if now < rec.UnlockAt(lockPeriod) {
		return StateLocked
	}
	return StateActive
}

// WithdrawReceipt describes a completed principal withdrawal.
type WithdrawReceipt struct {
	Principal *big.Int `json:"principal"`
	Reward    *big.Int `json:"reward"`
	Total     *big.Int `json:"total"`
	Timestamp uint64   `json:"timestamp"`
	Sequence  uint64   `json:"sequence"`
}
