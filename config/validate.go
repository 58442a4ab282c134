package config

import (
	"fmt"

	"stakevault/native/staking"
)

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	s := cfg.Staking
	if s.BaseAPR > staking.MaxAPR {
		return fmt.Errorf("staking: BaseAPR > %d", staking.MaxAPR)
	}
	if s.BonusAPR > staking.MaxAPR {
		return fmt.Errorf("staking: BonusAPR > %d", staking.MaxAPR)
	}
	threshold, err := parseUintAmount(s.NFTThreshold)
	if err != nil {
		return fmt.Errorf("staking: NFTThreshold: %w", err)
	}
	if threshold.Sign() == 0 {
		return fmt.Errorf("staking: NFTThreshold must be positive")
	}
	params, err := s.Params()
	if err != nil {
		return err
	}
	return params.Validate()
}
