package staking

import "math/big"

// PrincipalToken moves the staked fungible token between an account and the
// ledger's custody balance. Failures abort the ledger operation.
type PrincipalToken interface {
	TransferIn(from [20]byte, amount *big.Int) error
	TransferOut(to [20]byte, amount *big.Int) error
}

// CredentialCustody mints bonus credentials and moves them in and out of
// ledger custody.
type CredentialCustody interface {
	Mint(owner [20]byte) (CredentialID, error)
	TransferIn(owner [20]byte, id CredentialID) error
	TransferOut(owner [20]byte, id CredentialID) error
	OwnerOf(id CredentialID) ([20]byte, error)
}
