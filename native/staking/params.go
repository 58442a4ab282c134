package staking

import (
	"fmt"
	"math/big"
)

const (
	// SecondsPerYear is the accrual year used by the reward formula.
	SecondsPerYear uint64 = 365 * 24 * 60 * 60
	// MaxAPR bounds the configurable rates, expressed in whole percent.
	MaxAPR uint64 = 10_000
)

const moduleName = "staking"

// Params captures the construction-time configuration of the ledger.
type Params struct {
	// BaseAPR is the annual rate in whole percent applied to every account.
	BaseAPR uint64
	// BonusAPR is added to BaseAPR while the account keeps a credential in
	// custody.
	BonusAPR uint64
	// LockPeriod is the number of seconds principal stays locked after the
	// lock anchor.
	LockPeriod uint64
	// NFTThreshold is the principal at or above which a bonus credential is
	// minted.
	NFTThreshold *big.Int
	// RemintOnRecross re-arms credential minting once principal falls below
	// the threshold after a mint.
	RemintOnRecross bool
	// ResetLockOnPartialWithdraw moves the lock anchor on partial
	// withdrawals.
	ResetLockOnPartialWithdraw bool
}

var tokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// DefaultParams mirrors the reference deployment: 8% base, 2% bonus, a 30s
// lock and a threshold of one million 18-decimal tokens.
func DefaultParams() Params {
	return Params{
		BaseAPR:                    8,
		BonusAPR:                   2,
		LockPeriod:                 30,
		NFTThreshold:               new(big.Int).Mul(big.NewInt(1_000_000), tokenUnit),
		ResetLockOnPartialWithdraw: true,
	}
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	if p.NFTThreshold != nil {
		clone.NFTThreshold = new(big.Int).Set(p.NFTThreshold)
	}
	return clone
}

// Validate checks that the parameters describe a usable ledger.
func (p Params) Validate() error {
	if p.BaseAPR > MaxAPR {
		return fmt.Errorf("%w: base APR %d exceeds %d", ErrInvalidParams, p.BaseAPR, MaxAPR)
	}
	if p.BonusAPR > MaxAPR {
		return fmt.Errorf("%w: bonus APR %d exceeds %d", ErrInvalidParams, p.BonusAPR, MaxAPR)
	}
	if p.NFTThreshold == nil || p.NFTThreshold.Sign() <= 0 {
		return fmt.Errorf("%w: credential threshold must be positive", ErrInvalidParams)
	}
	if err := checkRange(p.NFTThreshold); err != nil {
		return fmt.Errorf("%w: credential threshold out of range", ErrInvalidParams)
	}
	return nil
}

// EffectiveAPR returns the rate for an account with or without a deposited
// credential.
func (p Params) EffectiveAPR(hasCredential bool) uint64 {
	if hasCredential {
		return p.BaseAPR + p.BonusAPR
	}
	return p.BaseAPR
}
