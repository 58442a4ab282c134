package staking

import (
	"math/big"
	"strconv"

	"stakevault/core/types"
	"stakevault/crypto"
)

// OperationKind names the ledger mutation an event reports.
type OperationKind string

const (
	OpDeposit            OperationKind = "Deposit"
	OpWithdraw           OperationKind = "Withdraw"
	OpClaimReward        OperationKind = "ClaimReward"
	OpDepositCredential  OperationKind = "DepositCredential"
	OpWithdrawCredential OperationKind = "WithdrawCredential"
	OpCredentialMinted   OperationKind = "CredentialMinted"
)

const (
	EventTypeDeposited           = "staking.deposited"
	EventTypeWithdrawn           = "staking.withdrawn"
	EventTypeRewardClaimed       = "staking.rewardClaimed"
	EventTypeCredentialDeposited = "staking.credentialDeposited"
	EventTypeCredentialWithdrawn = "staking.credentialWithdrawn"
	EventTypeCredentialMinted    = "staking.credentialMinted"
)

var eventTypes = map[OperationKind]string{
	OpDeposit:            EventTypeDeposited,
	OpWithdraw:           EventTypeWithdrawn,
	OpClaimReward:        EventTypeRewardClaimed,
	OpDepositCredential:  EventTypeCredentialDeposited,
	OpWithdrawCredential: EventTypeCredentialWithdrawn,
	OpCredentialMinted:   EventTypeCredentialMinted,
}

// LedgerEvent is the immutable record of one successful mutation. Amount is
// set for token movements and Credential for custody changes and mints.
type LedgerEvent struct {
	Account    [20]byte
	Kind       OperationKind
	Amount     *big.Int
	Credential CredentialID
	Timestamp  uint64
	Sequence   uint64
}

// EventType satisfies the events.Event interface.
func (e LedgerEvent) EventType() string { return eventTypes[e.Kind] }

// Event converts the structured payload into a broadcastable event.
func (e LedgerEvent) Event() *types.Event {
	attrs := map[string]string{
		"addr":      crypto.FromRaw(crypto.StakePrefix, e.Account).String(),
		"kind":      string(e.Kind),
		"timestamp": strconv.FormatUint(e.Timestamp, 10),
		"sequence":  strconv.FormatUint(e.Sequence, 10),
	}
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	if e.Credential != 0 {
		attrs["credentialId"] = strconv.FormatUint(uint64(e.Credential), 10)
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}
