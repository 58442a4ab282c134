package staking

import (
	"math/big"
)

var rewardDenominator = new(big.Int).SetUint64(SecondsPerYear * 100)

// ComputeAccrued returns the reward earned by rec between its last checkpoint
// and now:
//
//	principal * apr * (now - lastCheckpoint) / (SecondsPerYear * 100)
//
// Division truncates toward zero, so tiny principal/time products accrue
// nothing. The function never mutates rec. A now earlier than the checkpoint
// yields ErrClockSkew; a result outside the 256-bit token range yields
// ErrOverflow.
func ComputeAccrued(rec *DepositRecord, now uint64) (*big.Int, error) {
	if rec == nil {
		return big.NewInt(0), nil
	}
	if now < rec.LastCheckpoint {
		return nil, ErrClockSkew
	}
	elapsed := now - rec.LastCheckpoint
	if elapsed == 0 || rec.APR == 0 || rec.Principal == nil || rec.Principal.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := checkRange(rec.Principal); err != nil {
		return nil, err
	}
	reward := new(big.Int).Mul(rec.Principal, new(big.Int).SetUint64(rec.APR))
	reward.Mul(reward, new(big.Int).SetUint64(elapsed))
	reward.Quo(reward, rewardDenominator)
	if err := checkRange(reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// PendingReward returns the banked reward plus the reward accrued since the
// last checkpoint.
func PendingReward(rec *DepositRecord, now uint64) (*big.Int, error) {
	accrued, err := ComputeAccrued(rec, now)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return accrued, nil
	}
	return checkedAdd(rec.AccruedReward, accrued)
}

// bank folds the reward accrued up to now into rec.AccruedReward and advances
// the checkpoint. rec must be a working copy owned by the caller.
func bank(rec *DepositRecord, now uint64) error {
	accrued, err := ComputeAccrued(rec, now)
	if err != nil {
		return err
	}
	total, err := checkedAdd(rec.AccruedReward, accrued)
	if err != nil {
		return err
	}
	rec.AccruedReward = total
	rec.LastCheckpoint = now
	return nil
}
