package config

import (
	"fmt"
	"math/big"
	"strings"

	nativecommon "stakevault/native/common"
	"stakevault/native/staking"
)

// Staking captures the [staking] section.
type Staking struct {
	BaseAPR           uint64 `toml:"BaseAPR"`
	BonusAPR          uint64 `toml:"BonusAPR"`
	LockPeriodSeconds uint64 `toml:"LockPeriodSeconds"`
	// NFTThreshold is a decimal string in base units so values beyond 64 bits
	// survive the TOML round trip.
	NFTThreshold               string `toml:"NFTThreshold"`
	RemintOnRecross            bool   `toml:"RemintOnRecross"`
	ResetLockOnPartialWithdraw bool   `toml:"ResetLockOnPartialWithdraw"`
	Paused                     bool   `toml:"Paused"`
}

// DefaultStaking mirrors staking.DefaultParams.
func DefaultStaking() Staking {
	params := staking.DefaultParams()
	return Staking{
		BaseAPR:                    params.BaseAPR,
		BonusAPR:                   params.BonusAPR,
		LockPeriodSeconds:          params.LockPeriod,
		NFTThreshold:               params.NFTThreshold.String(),
		RemintOnRecross:            params.RemintOnRecross,
		ResetLockOnPartialWithdraw: params.ResetLockOnPartialWithdraw,
	}
}

// Params parses the section into ledger parameters.
func (s Staking) Params() (staking.Params, error) {
	threshold, err := parseUintAmount(s.NFTThreshold)
	if err != nil {
		return staking.Params{}, fmt.Errorf("invalid staking.NFTThreshold: %w", err)
	}
	params := staking.Params{
		BaseAPR:                    s.BaseAPR,
		BonusAPR:                   s.BonusAPR,
		LockPeriod:                 s.LockPeriodSeconds,
		NFTThreshold:               threshold,
		RemintOnRecross:            s.RemintOnRecross,
		ResetLockOnPartialWithdraw: s.ResetLockOnPartialWithdraw,
	}
	return params, nil
}

// Pauses returns the module pause table derived from the section.
func (s Staking) Pauses() nativecommon.StaticPauses {
	return nativecommon.StaticPauses{"staking": s.Paused}
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", trimmed)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", trimmed)
	}
	return amount, nil
}
