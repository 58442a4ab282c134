package staking

import "errors"

var (
	ErrInvalidAmount         = errors.New("staking: invalid amount")
	ErrStillLocked           = errors.New("staking: tokens are still locked")
	ErrNoPrincipal           = errors.New("staking: nothing staked")
	ErrOverflow              = errors.New("staking: arithmetic overflow")
	ErrNotOwner              = errors.New("staking: caller does not own credential")
	ErrAlreadyDeposited      = errors.New("staking: credential already deposited")
	ErrNoCredentialDeposited = errors.New("staking: no credential deposited")
	ErrClockSkew             = errors.New("staking: clock moved behind last checkpoint")
	ErrInvalidParams         = errors.New("staking: invalid parameters")
	ErrNotConfigured         = errors.New("staking: ledger not configured")
)
