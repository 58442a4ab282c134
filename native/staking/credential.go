package staking

import (
	"fmt"
	"math/big"
)

// issuerState is the per-account book-keeping of the credential issuer. It is
// persisted next to the account's record so both change atomically.
type issuerState struct {
	// LastMinted is the most recent credential minted for the account.
	LastMinted CredentialID
	// Spent is set once a threshold crossing has been rewarded and cleared
	// only when re-minting is enabled and principal falls below threshold.
	Spent bool
}

// Issuer decides when bonus credentials are minted and moves them in and out
// of custody. It holds no per-account state between calls.
type Issuer struct {
	custody   CredentialCustody
	threshold *big.Int
	remint    bool
}

// NewIssuer constructs an issuer minting through custody once principal
// reaches threshold.
func NewIssuer(custody CredentialCustody, threshold *big.Int, remint bool) *Issuer {
	return &Issuer{custody: custody, threshold: cloneBigInt(threshold), remint: remint}
}

func (i *Issuer) eligible(state *issuerState, newPrincipal *big.Int) bool {
	if i == nil || state == nil || state.Spent || newPrincipal == nil {
		return false
	}
	return newPrincipal.Cmp(i.threshold) >= 0
}

// reserve marks the threshold crossing as spent when newPrincipal first
// reaches the threshold, or again once observeBalance re-armed minting. The
// ledger persists the reservation before calling mint.
func (i *Issuer) reserve(state *issuerState, newPrincipal *big.Int) bool {
	if !i.eligible(state, newPrincipal) {
		return false
	}
	state.Spent = true
	return true
}

func (i *Issuer) mint(account [20]byte, state *issuerState) (CredentialID, error) {
	if i.custody == nil {
		return 0, ErrNotConfigured
	}
	id, err := i.custody.Mint(account)
	if err != nil {
		return 0, fmt.Errorf("staking: mint credential: %w", err)
	}
	state.LastMinted = id
	return id, nil
}

// observeBalance re-arms minting when the policy allows it and principal has
// dropped below the threshold.
func (i *Issuer) observeBalance(state *issuerState, principal *big.Int) {
	if i == nil || state == nil || !i.remint || !state.Spent {
		return
	}
	if principal == nil || principal.Cmp(i.threshold) < 0 {
		state.Spent = false
	}
}

// DepositCredential moves id from account into custody and records it on the
// working copy rec.
func (i *Issuer) DepositCredential(account [20]byte, id CredentialID, rec *DepositRecord, now uint64) error {
	if i == nil || i.custody == nil {
		return ErrNotConfigured
	}
	if id == 0 {
		return ErrNotOwner
	}
	owner, err := i.custody.OwnerOf(id)
	if err != nil || owner != account {
		return ErrNotOwner
	}
	if rec.HasCredential() {
		return ErrAlreadyDeposited
	}
	if err := i.custody.TransferIn(account, id); err != nil {
		return fmt.Errorf("staking: credential transfer in: %w", err)
	}
	rec.Credential = id
	rec.NFTCheckpoint = now
	return nil
}

// WithdrawCredential returns the credential held for account and clears it on
// the working copy rec.
func (i *Issuer) WithdrawCredential(account [20]byte, rec *DepositRecord) (CredentialID, error) {
	if i == nil || i.custody == nil {
		return 0, ErrNotConfigured
	}
	if !rec.HasCredential() {
		return 0, ErrNoCredentialDeposited
	}
	id := rec.Credential
	if err := i.custody.TransferOut(account, id); err != nil {
		return 0, fmt.Errorf("staking: credential transfer out: %w", err)
	}
	rec.Credential = 0
	rec.NFTCheckpoint = 0
	return id, nil
}
